package config

// Ambientes aceitos em ENVIRONMENT.
const (
	EnvDevelopment = "development"
	EnvTesting     = "testing"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// defaults por chave mapstructure. Segredos, DATABASE_URL e REDIS_URL não têm
// default de propósito: ausentes, a resolução falha.
var defaults = map[string]any{
	"app_name":               "CLOS Orchestrator",
	"app_version":            "1.0.0",
	"environment":            EnvDevelopment,
	"debug":                  false,
	"jwt_algorithm":          "HS256",
	"jwt_expiration_minutes": 30,

	"host":    "0.0.0.0",
	"reload":  false,
	"port":    8000,
	"workers": 4,

	"database_pool_size":    20,
	"database_max_overflow": 40,
	"database_pool_timeout": 30,
	"database_echo":         false,

	"redis_pool_size": 10,

	"aws_region":         "us-east-1",
	"s3_bucket_assets":   "candlefish-assets",
	"s3_bucket_backups":  "candlefish-backups",
	"new_relic_app_name": "CLOS Orchestrator",

	"agent_timeout":     300,
	"agent_max_retries": 3,
	"agent_retry_delay": 5,
	"agent_queue_size":  100,

	"enable_agent_logging":          true,
	"enable_performance_monitoring": false,
	"enable_rate_limiting":          true,

	"rate_limit_requests":   100,
	"rate_limit_period":     60,
	"rate_limit_backend":    "memory",
	"rate_limit_algorithm":  "fixed_window",
	"rate_limit_key_header": "",
	"trust_x_forwarded_for": false,
	"rate_limit_headers":    true,
	"rate_limit_stats":      "none",

	"cors_origins":           []string{"http://localhost:3000", "http://localhost:8000"},
	"cors_allow_credentials": true,
	"cors_allow_methods":     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
	"cors_allow_headers":     []string{"*"},
	"allowed_hosts":          []string{"*.candlefish.ai", "localhost"},

	"log_level":  "INFO",
	"log_format": "json",
	"log_output": "stdout",

	"startup_timeout":  30,
	"shutdown_timeout": 30,
	"request_timeout":  60,

	"upstream_auth_url":      "",
	"upstream_agents_url":    "",
	"upstream_workflows_url": "",
	"upstream_services_url":  "",
}
