// Package application contém o caso de uso de admissão do rate limit.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(ctx, key, now) retorna uma Decision (allow/deny +
// retry-after).
package application
