// Package pipeline compõe os interceptadores HTTP em uma lista ordenada e
// explícita.
//
// Cada estágio implementa Interceptor e decide se chama next (segue a
// cadeia) ou responde diretamente (curto-circuito). Na entrada o pipeline cria
// um RequestContext (request id, identidade, trace id, início) que os estágios
// leem via FromContext, e embrulha o ResponseWriter uma única vez para que o
// status real fique visível a todos.
package pipeline
