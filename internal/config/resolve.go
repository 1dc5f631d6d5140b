package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Sources lista de onde Resolve lê. Environ segue o formato de os.Environ();
// injetá-lo deixa a resolução determinística nos testes.
type Sources struct {
	Environ    []string
	DotEnvFile string // opcional; arquivo ausente é ignorado
	ConfigFile string // opcional; se informado, precisa existir
}

// DefaultSources lê o ambiente do processo e ./.env.
func DefaultSources() Sources {
	return Sources{Environ: os.Environ(), DotEnvFile: ".env"}
}

var (
	databaseSchemes = []string{"postgresql", "postgres"}
	cacheSchemes    = []string{"redis"}
	upstreamSchemes = []string{"http", "https"}
)

type fieldSpec struct {
	key  string
	env  string
	kind reflect.Kind
}

var fieldSpecs = collectFieldSpecs()

func collectFieldSpecs() []fieldSpec {
	t := reflect.TypeOf(Config{})
	specs := make([]fieldSpec, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		specs = append(specs, fieldSpec{
			key:  f.Tag.Get("mapstructure"),
			env:  f.Tag.Get("env"),
			kind: f.Type.Kind(),
		})
	}
	return specs
}

// Resolve carrega e valida a configuração. Em caso de erro devolve nil e um
// *ConfigError; nunca expõe configuração parcial.
func Resolve(src Sources) (*Config, error) {
	v := viper.New()
	for key, def := range defaults {
		v.SetDefault(key, def)
	}

	if src.ConfigFile != "" {
		v.SetConfigFile(src.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigError{Field: "config file " + src.ConfigFile, Reason: err.Error()}
		}
	}

	if src.DotEnvFile != "" {
		vals, err := godotenv.Read(src.DotEnvFile)
		switch {
		case err == nil:
			overlay(v, vals)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, &ConfigError{Field: "dotenv file " + src.DotEnvFile, Reason: err.Error()}
		}
	}

	overlay(v, environMap(src.Environ))

	if err := coerceScalars(v); err != nil {
		return nil, err
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, &ConfigError{Field: "configuration", Reason: err.Error()}
	}

	normalize(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// overlay aplica valores indexados pelo nome da variável de ambiente.
// Valores vazios contam como "não definido".
func overlay(v *viper.Viper, vals map[string]string) {
	for _, f := range fieldSpecs {
		if raw, ok := vals[f.env]; ok && strings.TrimSpace(raw) != "" {
			v.Set(f.key, raw)
		}
	}
}

func environMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		m[k] = val
	}
	return m
}

// coerceScalars converte strings vindas do ambiente em int/bool antes do
// decode, para que o erro cite a variável em vez de um caminho interno.
func coerceScalars(v *viper.Viper) error {
	for _, f := range fieldSpecs {
		raw := v.Get(f.key)
		switch f.kind {
		case reflect.Int:
			n, err := toInt(raw)
			if err != nil {
				return &ConfigError{Field: f.env, Reason: err.Error()}
			}
			v.Set(f.key, n)
		case reflect.Bool:
			s, ok := raw.(string)
			if !ok {
				continue
			}
			b, err := strconv.ParseBool(strings.TrimSpace(s))
			if err != nil {
				return &ConfigError{Field: f.env, Reason: fmt.Sprintf("must be a boolean, got %q", s)}
			}
			v.Set(f.key, b)
		}
	}
	return nil
}

func toInt(raw any) (int, error) {
	switch x := raw.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) || x < math.MinInt32 || x > math.MaxInt32 {
			return 0, fmt.Errorf("must be an integer, got %v", x)
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("must be an integer, got %q", x)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("must be an integer, got %T", raw)
	}
}

func normalize(cfg *Config) {
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.RateLimitBackend = strings.ToLower(strings.TrimSpace(cfg.RateLimitBackend))
	cfg.RateLimitAlgorithm = strings.ToLower(strings.TrimSpace(cfg.RateLimitAlgorithm))
	cfg.RateLimitStats = strings.ToLower(strings.TrimSpace(cfg.RateLimitStats))

	cfg.CORSOrigins = orderedSet(cfg.CORSOrigins, nil)
	cfg.CORSAllowMethods = orderedSet(cfg.CORSAllowMethods, strings.ToUpper)
	cfg.CORSAllowHeaders = orderedSet(cfg.CORSAllowHeaders, nil)
	cfg.AllowedHosts = orderedSet(cfg.AllowedHosts, strings.ToLower)
}

// orderedSet remove espaços, vazios e repetidos, preservando a ordem.
func orderedSet(in []string, canon func(string) string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if canon != nil {
			s = canon(s)
		}
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})
	return v
}

func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return &ConfigError{Field: "configuration", Reason: err.Error()}
	}

	if err := checkScheme("DATABASE_URL", cfg.DatabaseURL, databaseSchemes); err != nil {
		return err
	}
	if err := checkScheme("REDIS_URL", cfg.RedisURL, cacheSchemes); err != nil {
		return err
	}
	for _, f := range []struct{ env, val string }{
		{"UPSTREAM_AUTH_URL", cfg.UpstreamAuthURL},
		{"UPSTREAM_AGENTS_URL", cfg.UpstreamAgentsURL},
		{"UPSTREAM_WORKFLOWS_URL", cfg.UpstreamWorkflowsURL},
		{"UPSTREAM_SERVICES_URL", cfg.UpstreamServicesURL},
		{"AWS_ENDPOINT_URL", cfg.AWSEndpointURL},
	} {
		if f.val == "" {
			continue
		}
		if err := checkScheme(f.env, f.val, upstreamSchemes); err != nil {
			return err
		}
	}

	if cfg.EnableRateLimiting && cfg.RateLimitPeriod == 0 {
		return &ConfigError{Field: "RATE_LIMIT_PERIOD", Reason: "must be > 0 when rate limiting is enabled"}
	}
	if cfg.RateLimitBackend == "redis" && cfg.RateLimitAlgorithm == "token_bucket" {
		return &ConfigError{Field: "RATE_LIMIT_ALGORITHM", Reason: "token_bucket is only available with the memory backend"}
	}
	return nil
}

func fieldError(fe validator.FieldError) *ConfigError {
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "oneof":
		reason = fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "gte":
		reason = fmt.Sprintf("must be >= %s, got %v", fe.Param(), fe.Value())
	case "lte":
		reason = fmt.Sprintf("must be <= %s, got %v", fe.Param(), fe.Value())
	default:
		reason = fmt.Sprintf("failed %q validation", fe.Tag())
	}
	return &ConfigError{Field: fe.Field(), Reason: reason}
}

// checkScheme exige o prefixo literal "<scheme>://" e um host.
func checkScheme(field, raw string, accepted []string) error {
	raw = strings.TrimSpace(raw)
	for _, s := range accepted {
		if !strings.HasPrefix(raw, s+"://") {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return &ConfigError{Field: field, Reason: "is not a valid URL"}
		}
		if u.Host == "" {
			return &ConfigError{Field: field, Reason: "must include a host"}
		}
		return nil
	}
	got, _, _ := strings.Cut(raw, ":")
	return &ConfigError{
		Field:  field,
		Reason: fmt.Sprintf("must use scheme %s://, got %q", strings.Join(accepted, ":// or "), got),
	}
}
