// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - WindowStore: janela fixa por chave em memória (padrão)
//   - RedisWindowStore: janela fixa compartilhada entre réplicas via script Lua
//   - TokenBucketStore: token bucket por chave usando golang.org/x/time/rate
//   - MemoryStatsStore / RedisStatsStore: estatísticas das decisões
package infra
