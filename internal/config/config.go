package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "CardCore"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"

	defaultBankAdapter           = "shadow-journal"
	defaultHoldsGLAccount        = "gl-holds"
	defaultSettlementGLAccount   = "gl-settlement"
	defaultProcessorName         = "generic-iso8583"
	defaultJWTTTL                = time.Hour
	defaultReconcileSchedule     = "@every 5m"
	defaultReconcileLookBack     = 24 * time.Hour
	defaultTransactionLimitMinor = 500_00
	defaultDailySpendLimitMinor  = 2_000_00
	defaultVelocityMaxPerMinute  = 5

	// Per-operation CBS call budgets: 200ms to check a balance, 300ms to
	// place/commit/release a hold, with the whole authorization decision
	// bounded to 500ms end to end.
	defaultBalanceTimeout      = 200 * time.Millisecond
	defaultHoldTimeout         = 300 * time.Millisecond
	defaultCommitTimeout       = 300 * time.Millisecond
	defaultReleaseTimeout      = 300 * time.Millisecond
	defaultAuthorizationBudget = 500 * time.Millisecond
)

// RulesConfig carries the parameters the built-in rules.Engine rules are
// constructed from (internal/rules/builtin.go).
type RulesConfig struct {
	TransactionLimitMinor int64
	DailySpendLimitMinor  int64
	Currency              string
	VelocityMaxPerMinute  int
	MCCBlocklist          []string
}

// BankConfig selects and parameterizes the BankAccountAdapter the core
// talks to, including the per-operation call timeouts every adapter
// call is wrapped in.
type BankConfig struct {
	Adapter             string
	HoldsGLAccount      string
	SettlementGLAccount string
	BaseURL             string
	APIKey              string
	Tenant              string

	BalanceTimeout      time.Duration
	HoldTimeout         time.Duration
	CommitTimeout       time.Duration
	ReleaseTimeout      time.Duration
	AuthorizationBudget time.Duration
}

// JWTConfig parameterizes operatorauth token issuance.
type JWTConfig struct {
	SigningKey string
	TTL        time.Duration
}

// ReconcileConfig parameterizes the internal/reconcile scheduler.
type ReconcileConfig struct {
	Schedule string
	LookBack time.Duration
}

// EmailConfig parameterizes internal/notification's EmailNotifier.
type EmailConfig struct {
	Enabled  bool
	From     string
	To       []string
	SMTPHost string
	SMTPPort string
	Username string
	Password string
}

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	Rules          RulesConfig
	Bank           BankConfig
	ProcessorName  string
	JWT            JWTConfig
	Reconcile      ReconcileConfig
	Email          EmailConfig
	MetricsEnabled bool
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,

		Rules: RulesConfig{
			TransactionLimitMinor: defaultTransactionLimitMinor,
			DailySpendLimitMinor:  defaultDailySpendLimitMinor,
			Currency:              getEnv("RULES_CURRENCY", "USD"),
			VelocityMaxPerMinute:  defaultVelocityMaxPerMinute,
			MCCBlocklist:          splitNonEmpty(os.Getenv("RULES_MCC_BLOCKLIST")),
		},
		Bank: BankConfig{
			Adapter:             getEnv("BANK_ADAPTER", defaultBankAdapter),
			HoldsGLAccount:      getEnv("BANK_HOLDS_GL_ACCOUNT", defaultHoldsGLAccount),
			SettlementGLAccount: getEnv("BANK_SETTLEMENT_GL_ACCOUNT", defaultSettlementGLAccount),
			BaseURL:             os.Getenv("BANK_BASE_URL"),
			APIKey:              os.Getenv("BANK_API_KEY"),
			Tenant:              os.Getenv("BANK_TENANT"),
			BalanceTimeout:      defaultBalanceTimeout,
			HoldTimeout:         defaultHoldTimeout,
			CommitTimeout:       defaultCommitTimeout,
			ReleaseTimeout:      defaultReleaseTimeout,
			AuthorizationBudget: defaultAuthorizationBudget,
		},
		ProcessorName: getEnv("PROCESSOR_NAME", defaultProcessorName),
		JWT: JWTConfig{
			SigningKey: os.Getenv("JWT_SIGNING_KEY"),
			TTL:        defaultJWTTTL,
		},
		Reconcile: ReconcileConfig{
			Schedule: getEnv("RECONCILE_SCHEDULE", defaultReconcileSchedule),
			LookBack: defaultReconcileLookBack,
		},
		Email: EmailConfig{
			Enabled:  getEnv("EMAIL_ENABLED", "false") == "true",
			From:     os.Getenv("EMAIL_FROM"),
			To:       splitNonEmpty(os.Getenv("EMAIL_TO")),
			SMTPHost: os.Getenv("SMTP_HOST"),
			SMTPPort: getEnv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
		MetricsEnabled: getEnv("METRICS_ENABLED", "true") == "true",
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(idemTTLDurEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLDurEnvVar, err)
		}
		cfg.IdempotencyTTL = d
	}

	if v := os.Getenv("RULES_TRANSACTION_LIMIT_MINOR"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RULES_TRANSACTION_LIMIT_MINOR: %w", err)
		}
		cfg.Rules.TransactionLimitMinor = n
	}
	if v := os.Getenv("RULES_DAILY_LIMIT_MINOR"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RULES_DAILY_LIMIT_MINOR: %w", err)
		}
		cfg.Rules.DailySpendLimitMinor = n
	}
	if v := os.Getenv("RULES_VELOCITY_MAX_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RULES_VELOCITY_MAX_PER_MINUTE: %w", err)
		}
		cfg.Rules.VelocityMaxPerMinute = n
	}

	if v := os.Getenv("JWT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid JWT_TTL: %w", err)
		}
		cfg.JWT.TTL = d
	}

	if v := os.Getenv("RECONCILE_LOOKBACK"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RECONCILE_LOOKBACK: %w", err)
		}
		cfg.Reconcile.LookBack = d
	}

	for envVar, dst := range map[string]*time.Duration{
		"BANK_BALANCE_TIMEOUT":      &cfg.Bank.BalanceTimeout,
		"BANK_HOLD_TIMEOUT":         &cfg.Bank.HoldTimeout,
		"BANK_COMMIT_TIMEOUT":       &cfg.Bank.CommitTimeout,
		"BANK_RELEASE_TIMEOUT":      &cfg.Bank.ReleaseTimeout,
		"BANK_AUTHORIZATION_BUDGET": &cfg.Bank.AuthorizationBudget,
	} {
		if v := os.Getenv(envVar); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", envVar, err)
			}
			*dst = d
		}
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}

	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}

	if cfg.JWT.SigningKey == "" {
		return Config{}, fmt.Errorf("JWT_SIGNING_KEY must be set")
	}

	if cfg.Email.Enabled && (cfg.Email.From == "" || len(cfg.Email.To) == 0 || cfg.Email.SMTPHost == "") {
		return Config{}, fmt.Errorf("EMAIL_FROM, EMAIL_TO and SMTP_HOST must be set when EMAIL_ENABLED=true")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitNonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
