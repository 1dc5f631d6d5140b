// Package config resolve e valida todos os parâmetros operacionais do
// orquestrador uma única vez, no início do processo.
//
// Fontes (da menor para a maior precedência):
//  1. valores padrão (defaults.go)
//  2. arquivo de configuração YAML/TOML opcional (viper)
//  3. arquivo .env opcional (godotenv, sem alterar o ambiente do processo)
//  4. variáveis de ambiente
//
// O *Config devolvido é somente leitura: é construído uma vez e passado por
// ponteiro para os construtores dos componentes.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config é o registro imutável de configuração.
//
// A tag env é o nome da variável de ambiente (e o nome usado nas mensagens de
// erro); mapstructure é a chave usada no arquivo de configuração.
type Config struct {
	AppName     string `mapstructure:"app_name" env:"APP_NAME" validate:"required"`
	AppVersion  string `mapstructure:"app_version" env:"APP_VERSION"`
	Environment string `mapstructure:"environment" env:"ENVIRONMENT" validate:"oneof=development testing staging production"`
	Debug       bool   `mapstructure:"debug" env:"DEBUG"`

	SecretKey            string `mapstructure:"secret_key" env:"SECRET_KEY" validate:"required"`
	JWTSecret            string `mapstructure:"jwt_secret" env:"JWT_SECRET" validate:"required"`
	JWTAlgorithm         string `mapstructure:"jwt_algorithm" env:"JWT_ALGORITHM"`
	JWTExpirationMinutes int    `mapstructure:"jwt_expiration_minutes" env:"JWT_EXPIRATION_MINUTES" validate:"gte=0,lte=525600"`

	Host    string `mapstructure:"host" env:"CLOS_HOST"`
	Reload  bool   `mapstructure:"reload" env:"CLOS_RELOAD"`
	Port    int    `mapstructure:"port" env:"CLOS_PORT" validate:"gte=0,lte=65535"`
	Workers int    `mapstructure:"workers" env:"CLOS_WORKERS" validate:"gte=0,lte=1024"`

	DatabaseURL         string `mapstructure:"database_url" env:"DATABASE_URL" validate:"required"`
	DatabasePoolSize    int    `mapstructure:"database_pool_size" env:"DB_POOL_SIZE" validate:"gte=0,lte=10000"`
	DatabaseMaxOverflow int    `mapstructure:"database_max_overflow" env:"DB_MAX_OVERFLOW" validate:"gte=0,lte=10000"`
	DatabasePoolTimeout int    `mapstructure:"database_pool_timeout" env:"DB_POOL_TIMEOUT" validate:"gte=0,lte=86400"`
	DatabaseEcho        bool   `mapstructure:"database_echo" env:"DB_ECHO"`

	RedisURL      string `mapstructure:"redis_url" env:"REDIS_URL" validate:"required"`
	RedisPoolSize int    `mapstructure:"redis_pool_size" env:"REDIS_POOL_SIZE" validate:"gte=0,lte=10000"`

	AWSRegion          string `mapstructure:"aws_region" env:"AWS_REGION"`
	AWSAccountID       string `mapstructure:"aws_account_id" env:"AWS_ACCOUNT_ID"`
	AWSAccessKeyID     string `mapstructure:"aws_access_key_id" env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	AWSEndpointURL     string `mapstructure:"aws_endpoint_url" env:"AWS_ENDPOINT_URL"`
	S3BucketAssets     string `mapstructure:"s3_bucket_assets" env:"S3_BUCKET_ASSETS"`
	S3BucketBackups    string `mapstructure:"s3_bucket_backups" env:"S3_BUCKET_BACKUPS"`

	AnthropicAPIKey string `mapstructure:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key" env:"OPENAI_API_KEY"`

	NewRelicLicenseKey string `mapstructure:"new_relic_license_key" env:"NEW_RELIC_LICENSE_KEY"`
	NewRelicAppName    string `mapstructure:"new_relic_app_name" env:"NEW_RELIC_APP_NAME"`
	DatadogAPIKey      string `mapstructure:"datadog_api_key" env:"DATADOG_API_KEY"`
	SentryDSN          string `mapstructure:"sentry_dsn" env:"SENTRY_DSN"`

	AgentTimeout    int `mapstructure:"agent_timeout" env:"AGENT_TIMEOUT" validate:"gte=0,lte=86400"`
	AgentMaxRetries int `mapstructure:"agent_max_retries" env:"AGENT_MAX_RETRIES" validate:"gte=0,lte=100"`
	AgentRetryDelay int `mapstructure:"agent_retry_delay" env:"AGENT_RETRY_DELAY" validate:"gte=0,lte=86400"`
	AgentQueueSize  int `mapstructure:"agent_queue_size" env:"AGENT_QUEUE_SIZE" validate:"gte=0,lte=1000000"`

	EnableAgentLogging          bool `mapstructure:"enable_agent_logging" env:"ENABLE_AGENT_LOGGING"`
	EnablePerformanceMonitoring bool `mapstructure:"enable_performance_monitoring" env:"ENABLE_PERFORMANCE_MONITORING"`
	EnableRateLimiting          bool `mapstructure:"enable_rate_limiting" env:"ENABLE_RATE_LIMITING"`

	RateLimitRequests  int    `mapstructure:"rate_limit_requests" env:"RATE_LIMIT_REQUESTS" validate:"gte=0,lte=1000000000"`
	RateLimitPeriod    int    `mapstructure:"rate_limit_period" env:"RATE_LIMIT_PERIOD" validate:"gte=0,lte=604800"`
	RateLimitBackend   string `mapstructure:"rate_limit_backend" env:"RATE_LIMIT_BACKEND" validate:"oneof=memory redis"`
	RateLimitAlgorithm string `mapstructure:"rate_limit_algorithm" env:"RATE_LIMIT_ALGORITHM" validate:"oneof=fixed_window token_bucket"`
	RateLimitKeyHeader string `mapstructure:"rate_limit_key_header" env:"RATE_LIMIT_KEY_HEADER"`
	TrustXForwardedFor bool   `mapstructure:"trust_x_forwarded_for" env:"TRUST_X_FORWARDED_FOR"`
	RateLimitHeaders   bool   `mapstructure:"rate_limit_headers" env:"RATE_LIMIT_HEADERS"`
	RateLimitStats     string `mapstructure:"rate_limit_stats" env:"RATE_LIMIT_STATS" validate:"oneof=none memory redis"`

	CORSOrigins          []string `mapstructure:"cors_origins" env:"CORS_ORIGINS"`
	CORSAllowCredentials bool     `mapstructure:"cors_allow_credentials" env:"CORS_ALLOW_CREDENTIALS"`
	CORSAllowMethods     []string `mapstructure:"cors_allow_methods" env:"CORS_ALLOW_METHODS"`
	CORSAllowHeaders     []string `mapstructure:"cors_allow_headers" env:"CORS_ALLOW_HEADERS"`
	AllowedHosts         []string `mapstructure:"allowed_hosts" env:"ALLOWED_HOSTS"`

	LogLevel  string `mapstructure:"log_level" env:"LOG_LEVEL" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	LogFormat string `mapstructure:"log_format" env:"LOG_FORMAT" validate:"oneof=text json"`
	LogOutput string `mapstructure:"log_output" env:"LOG_OUTPUT"`

	StartupTimeoutSeconds  int `mapstructure:"startup_timeout" env:"STARTUP_TIMEOUT" validate:"gte=0,lte=86400"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gte=0,lte=86400"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout" env:"REQUEST_TIMEOUT" validate:"gte=0,lte=86400"`

	UpstreamAuthURL      string `mapstructure:"upstream_auth_url" env:"UPSTREAM_AUTH_URL"`
	UpstreamAgentsURL    string `mapstructure:"upstream_agents_url" env:"UPSTREAM_AGENTS_URL"`
	UpstreamWorkflowsURL string `mapstructure:"upstream_workflows_url" env:"UPSTREAM_WORKFLOWS_URL"`
	UpstreamServicesURL  string `mapstructure:"upstream_services_url" env:"UPSTREAM_SERVICES_URL"`
}

// IsProduction indica ambiente "production-like" (production ou staging).
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction || c.Environment == EnvStaging
}

func (c *Config) IsDevelopment() bool { return c.Environment == EnvDevelopment }

func (c *Config) IsTesting() bool { return c.Environment == EnvTesting }

// Addr devolve host:port para o listener HTTP.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EffectiveLogLevel força DEBUG quando DEBUG=true.
func (c *Config) EffectiveLogLevel() string {
	if c.Debug {
		return "DEBUG"
	}
	return c.LogLevel
}

func (c *Config) RateLimitWindow() time.Duration { return seconds(c.RateLimitPeriod) }
func (c *Config) StartupTimeout() time.Duration  { return seconds(c.StartupTimeoutSeconds) }
func (c *Config) ShutdownTimeout() time.Duration { return seconds(c.ShutdownTimeoutSeconds) }
func (c *Config) RequestTimeout() time.Duration  { return seconds(c.RequestTimeoutSeconds) }
func (c *Config) AgentJobTimeout() time.Duration { return seconds(c.AgentTimeout) }
func (c *Config) AgentBackoff() time.Duration    { return seconds(c.AgentRetryDelay) }
func (c *Config) DatabaseConnectTimeout() time.Duration {
	return seconds(c.DatabasePoolTimeout)
}

// DatabasePoolMaxConns soma o pool base e o overflow (teto de conexões).
func (c *Config) DatabasePoolMaxConns() int {
	return c.DatabasePoolSize + c.DatabaseMaxOverflow
}

// AllowedHostsOrDefault aceita qualquer host em development.
func (c *Config) AllowedHostsOrDefault() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return append([]string(nil), c.AllowedHosts...)
}

// Upstreams mapeia grupo de rotas -> URL do colaborador (vazio = não configurado).
func (c *Config) Upstreams() map[string]string {
	return map[string]string{
		"auth":      c.UpstreamAuthURL,
		"agents":    c.UpstreamAgentsURL,
		"workflows": c.UpstreamWorkflowsURL,
		"services":  c.UpstreamServicesURL,
	}
}

// AWSConfig agrupa os parâmetros de cliente AWS. As credenciais só são
// preenchidas quando o par (id, secret) está completo.
type AWSConfig struct {
	Region          string
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	EndpointURL     string
}

func (c *Config) AWSConfig() AWSConfig {
	aws := AWSConfig{
		Region:      c.AWSRegion,
		AccountID:   c.AWSAccountID,
		EndpointURL: c.AWSEndpointURL,
	}
	if c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != "" {
		aws.AccessKeyID = c.AWSAccessKeyID
		aws.SecretAccessKey = c.AWSSecretAccessKey
	}
	return aws
}

// Redacted devolve um resumo seguro para log/CLI: segredos omitidos e senhas
// das URLs mascaradas.
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"app_name":             c.AppName,
		"app_version":          c.AppVersion,
		"environment":          c.Environment,
		"addr":                 c.Addr(),
		"workers":              c.Workers,
		"database_url":         redactURL(c.DatabaseURL),
		"database_pool":        fmt.Sprintf("%d+%d", c.DatabasePoolSize, c.DatabaseMaxOverflow),
		"redis_url":            redactURL(c.RedisURL),
		"redis_pool_size":      c.RedisPoolSize,
		"rate_limiting":        c.EnableRateLimiting,
		"rate_limit":           fmt.Sprintf("%d/%ds %s %s", c.RateLimitRequests, c.RateLimitPeriod, c.RateLimitAlgorithm, c.RateLimitBackend),
		"performance_monitor":  c.EnablePerformanceMonitoring,
		"cors_origins":         c.CORSOrigins,
		"allowed_hosts":        c.AllowedHostsOrDefault(),
		"log":                  fmt.Sprintf("%s/%s/%s", c.EffectiveLogLevel(), c.LogFormat, c.LogOutput),
		"secret_key":           "***",
		"jwt_secret":           "***",
		"startup_timeout_secs": c.StartupTimeoutSeconds,
		"reload":               c.Reload,
		"aws_region":           c.AWSRegion,
		"aws_account_id":       c.AWSAccountID,
		"aws_access_key_id":    mask(c.AWSAccessKeyID),
		"aws_secret_key":       mask(c.AWSSecretAccessKey),
		"aws_endpoint_url":     c.AWSEndpointURL,
		"s3_buckets":           []string{c.S3BucketAssets, c.S3BucketBackups},
		"anthropic_api_key":    mask(c.AnthropicAPIKey),
		"openai_api_key":       mask(c.OpenAIAPIKey),
		"new_relic":            fmt.Sprintf("%s (license %s)", c.NewRelicAppName, mask(c.NewRelicLicenseKey)),
		"datadog_api_key":      mask(c.DatadogAPIKey),
		"sentry_dsn":           mask(c.SentryDSN),
	}
}

// mask distingue "não configurado" de "configurado" sem expor o valor.
func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
