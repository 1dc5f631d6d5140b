// Package ratelimit é o estágio HTTP (net/http) de rate limit do pipeline.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: caso de uso de admissão (allow/deny, fail-open) sem net/http
//   - infra: implementações concretas (janela fixa em memória e Redis, token
//     bucket, estatísticas)
//   - ratelimit (este pacote): estágio HTTP + extração de chave + tradução
//     para status/headers
//
// Fluxo no pipeline:
//
//  1. Lê a identidade do RequestContext (ou extrai de header/XFF/RemoteAddr)
//  2. Chama a camada application para obter a decisão
//  3. Se bloqueado, responde 429 {"detail":"Too many requests"} com Retry-After
//  4. Se permitido, chama o próximo estágio
//
// As variáveis ENABLE_RATE_LIMITING, RATE_LIMIT_REQUESTS, RATE_LIMIT_PERIOD,
// RATE_LIMIT_BACKEND e RATE_LIMIT_ALGORITHM controlam o comportamento.
package ratelimit
