// Package lifecycle controla a subida e a descida ordenadas dos recursos de
// que o orquestrador depende (store, cache, pool de workers...).
//
// A ordem declarada é a ordem de dependência. StartAll sobe os recursos nessa
// ordem; se algum falhar, os que já subiram são parados em ordem reversa e um
// *StartupError é devolvido. StopAll para os recursos iniciados em ordem
// exatamente reversa, uma única vez cada, e nunca devolve erro: falhas viram
// log (*ShutdownError).
//
// Em qualquer instante o conjunto de recursos no estado Started é um prefixo
// contíguo da lista declarada.
package lifecycle
