package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// Config is the full runtime configuration of the API process.
type Config struct {
	Env      string
	HTTPAddr string
	GRPCAddr string

	DB      DBConfig
	Auth    AuthConfig
	Billing BillingConfig
	Storage StorageConfig
	Mail    MailConfig
	Redis   RedisConfig
	OTel    OTelConfig
	Log     LogConfig
	HTTP    HTTPConfig
}

type DBConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

type AuthConfig struct {
	Secret       string
	CookieSecure bool
}

type BillingConfig struct {
	// GSTPercent is applied to invoices of domestic clients.
	GSTPercent decimal.Decimal
	// CutOffDate marks days before it as already invoiced in timesheet summaries.
	CutOffDate time.Time
}

type StorageConfig struct {
	Dir         string
	URL         string
	AccountName string
	Container   string
}

// BucketURL names the remote bucket to open. Empty means the local directory.
func (c StorageConfig) BucketURL() string {
	switch {
	case c.URL != "":
		return c.URL
	case c.AccountName != "":
		return "azblob://" + c.Container + "?storage_account=" + c.AccountName
	}
	return ""
}

type MailConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	FromName string
}

type RedisConfig struct {
	URL     string
	RoleTTL time.Duration
}

type OTelConfig struct {
	Endpoint       string
	ServiceName    string
	ServiceVersion string
}

type LogConfig struct {
	Level  string
	Format string
}

type HTTPConfig struct {
	RateBurst int
	RateRPS   float64
}

func (c MailConfig) Enabled() bool  { return c.Server != "" }
func (c RedisConfig) Enabled() bool { return c.URL != "" }
func (c OTelConfig) Enabled() bool  { return c.Endpoint != "" }

// Loader resolves configuration keys from the environment, then from an
// optional YAML defaults file, then from built-in fallbacks.
type Loader struct {
	lookup   func(string) (string, bool)
	defaults map[string]string
}

// Load reads .env (when present), the YAML file named by TALLYBOOK_CONFIG and
// the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	l := &Loader{lookup: os.LookupEnv}
	if path, ok := os.LookupEnv("TALLYBOOK_CONFIG"); ok && path != "" {
		if err := l.ReadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg, err := l.Build()
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// NewLoader returns a loader backed by the given lookup function.
func NewLoader(lookup func(string) (string, bool)) *Loader {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	return &Loader{lookup: lookup}
}

// ReadFile loads a flat YAML map of KEY: value defaults.
func (l *Loader) ReadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return l.ReadYAML(raw)
}

func (l *Loader) ReadYAML(raw []byte) error {
	values := map[string]string{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if l.defaults == nil {
		l.defaults = make(map[string]string, len(values))
	}
	for k, v := range values {
		l.defaults[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return nil
}

// Build assembles a Config from the loader's sources.
func (l *Loader) Build() (Config, error) {
	gst, err := decimal.NewFromString(l.getEnv("GST_PCT", "18"))
	if err != nil {
		return Config{}, fmt.Errorf("GST_PCT: %w", err)
	}
	cutOff, err := time.Parse("2006-01-02", l.getEnv("ORG_START_DATE", "2023-05-31"))
	if err != nil {
		return Config{}, fmt.Errorf("ORG_START_DATE: %w", err)
	}
	roleTTL, err := time.ParseDuration(l.getEnv("ROLE_CACHE_TTL", "60s"))
	if err != nil {
		return Config{}, fmt.Errorf("ROLE_CACHE_TTL: %w", err)
	}

	cfg := Config{
		Env:      l.getEnv("TALLYBOOK_ENV", "development"),
		HTTPAddr: l.getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr: l.getEnv("GRPC_ADDR", ":9090"),
		DB: DBConfig{
			DSN:          l.databaseURL(),
			MaxOpenConns: l.getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns: l.getEnvInt("DB_MAX_IDLE_CONNS", 25),
		},
		Auth: AuthConfig{
			Secret:       l.getEnv("JWT_SECRET", ""),
			CookieSecure: l.getEnvBool("COOKIE_SECURE", true),
		},
		Billing: BillingConfig{
			GSTPercent: gst,
			CutOffDate: cutOff.UTC(),
		},
		Storage: StorageConfig{
			Dir:         l.getEnv("STORAGE_DIR", "./data/blobs"),
			URL:         l.getEnv("STORAGE_URL", ""),
			AccountName: l.getEnv("STORAGE_ACCOUNT_NAME", ""),
			Container:   l.getEnv("STORAGE_CONTAINER", "documents"),
		},
		Mail: MailConfig{
			Server:   l.getEnv("MAIL_SERVER", ""),
			Port:     l.getEnvInt("MAIL_PORT", 587),
			Username: l.getEnv("BILLING_MAIL_USERNAME", ""),
			Password: l.getEnv("MAIL_PASSWORD", ""),
			FromName: l.getEnv("MAIL_FROM_NAME", "Billing"),
		},
		Redis: RedisConfig{
			URL:     l.getEnv("REDIS_URL", ""),
			RoleTTL: roleTTL,
		},
		OTel: OTelConfig{
			Endpoint:       l.getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:    l.getEnv("OTEL_SERVICE_NAME", "tallybook-api"),
			ServiceVersion: l.getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		Log: LogConfig{
			Level:  l.getEnv("LOG_LEVEL", "info"),
			Format: l.getEnv("LOG_FORMAT", "json"),
		},
		HTTP: HTTPConfig{
			RateBurst: l.getEnvInt("RATE_LIMIT_BURST", 20),
			RateRPS:   l.getEnvFloat("RATE_LIMIT_RPS", 10),
		},
	}
	return cfg, nil
}

// Validate reports missing or inconsistent required settings.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.DB.DSN == "" {
		errs = append(errs, errors.New("DATABASE_URL or DB_HOST/DB_NAME is required"))
	}
	if c.Mail.Enabled() && c.Mail.Username == "" {
		errs = append(errs, errors.New("BILLING_MAIL_USERNAME is required when MAIL_SERVER is set"))
	}
	if c.Billing.GSTPercent.IsNegative() {
		errs = append(errs, errors.New("GST_PCT must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool { return c.Env == "production" }

func (l *Loader) databaseURL() string {
	if dsn := l.getEnv("DATABASE_URL", ""); dsn != "" {
		return dsn
	}
	host := l.getEnv("DB_HOST", "")
	name := l.getEnv("DB_NAME", "")
	if host == "" || name == "" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     host,
		Path:     "/" + name,
		RawQuery: "sslmode=" + l.getEnv("DB_SSLMODE", "disable"),
	}
	if user := l.getEnv("DB_USER", ""); user != "" {
		u.User = url.UserPassword(user, l.getEnv("DB_PASS", ""))
	}
	return u.String()
}

func (l *Loader) getEnv(key, fallback string) string {
	if value, ok := l.lookup(key); ok {
		return value
	}
	if value, ok := l.defaults[key]; ok {
		return value
	}
	return fallback
}

func (l *Loader) getEnvInt(key string, fallback int) int {
	if i, err := strconv.Atoi(l.getEnv(key, "")); err == nil {
		return i
	}
	return fallback
}

func (l *Loader) getEnvFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(l.getEnv(key, ""), 64); err == nil {
		return f
	}
	return fallback
}

func (l *Loader) getEnvBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(l.getEnv(key, "")); err == nil {
		return b
	}
	return fallback
}
