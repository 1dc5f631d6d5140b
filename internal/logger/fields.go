package logger

// Chaves estáveis dos campos estruturados. Use sempre estas constantes para
// que as consultas no agregador de logs não quebrem.
const (
	KeyRequestID  = "request_id"
	KeyTraceID    = "trace_id"
	KeyIdentity   = "identity"
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyRoute      = "route"
	KeyStatus     = "status"
	KeyDurationMs = "duration_ms"
	KeyBytes      = "bytes"
	KeyHost       = "host"
	KeyOrigin     = "origin"
	KeyRemoteAddr = "remote_addr"

	KeyResource = "resource"
	KeyState    = "state"
	KeyError    = "error"
	KeyErrType  = "error_type"
	KeyStack    = "stack"

	KeyJobID    = "job_id"
	KeyAttempt  = "attempt"
	KeyWorkers  = "workers"
	KeyEnv      = "environment"
	KeyVersion  = "version"
	KeyAddr     = "addr"
	KeyUpstream = "upstream"
)
