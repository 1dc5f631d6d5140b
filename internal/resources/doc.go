// Package resources contém os recursos gerenciados pelo lifecycle.Manager:
// store PostgreSQL, cache Redis, pool de workers de agentes, telemetria
// OpenTelemetry e o janitor do rate limit em memória.
//
// Todos implementam lifecycle.Resource. Construtores não fazem I/O; conexões
// são abertas em Start e liberadas em Stop.
package resources
