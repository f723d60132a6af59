package config

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/servemate/service-booking/internal/domain/quota"
)

const envPrefix = "BOOKING"

// ServiceConfig holds all configuration for the booking service.
type ServiceConfig struct {
	Port   string `envconfig:"SERVICE_PORT" default:":8080"`
	AppEnv string `envconfig:"APP_ENV" default:"development"`

	DB        DatabaseConfig  `envconfig:"DB"`
	Kafka     KafkaConfig     `envconfig:"KAFKA"`
	Redis     RedisConfig     `envconfig:"REDIS"`
	Limits    LimitsConfig    `envconfig:"LIMITS"`
	Scheduler SchedulerConfig `envconfig:"SCHEDULER"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	Host         string `envconfig:"HOST" default:"localhost"`
	Port         string `envconfig:"PORT" default:"5432"`
	User         string `envconfig:"USER" default:"postgres"`
	Password     string `envconfig:"PASSWORD"`
	DBName       string `envconfig:"NAME" default:"service_booking"`
	SSLMode      string `envconfig:"SSLMODE" default:"disable"`
	MaxOpenConns int    `envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int    `envconfig:"MAX_IDLE_CONNS" default:"5"`

	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"migrations"`
}

// DSN returns the gorm/pgx connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// URL returns the connection string in URL form for the migration runner.
func (c DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// KafkaConfig holds the broker settings. No brokers disables Kafka.
type KafkaConfig struct {
	Brokers     []string `envconfig:"BROKERS"`
	GroupPrefix string   `envconfig:"GROUP_PREFIX" default:"servemate-"`
}

// Enabled reports whether any broker is configured.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// RedisConfig holds the optional sweep-lease store. An empty Addr runs the
// sweep without a lease.
type RedisConfig struct {
	Addr      string `envconfig:"ADDR"`
	Password  string `envconfig:"PASSWORD"`
	DB        int    `envconfig:"DB" default:"0"`
	KeyPrefix string `envconfig:"KEY_PREFIX" default:"service-booking:lease:"`
}

// LimitsConfig mirrors quota.Limits.
type LimitsConfig struct {
	MaxActiveServices                 int `envconfig:"MAX_ACTIVE_SERVICES" default:"10"`
	MaxAcceptedBookings               int `envconfig:"MAX_ACCEPTED_BOOKINGS" default:"5"`
	MaxPendingRequestsPerService      int `envconfig:"MAX_PENDING_REQUESTS_PER_SERVICE" default:"20"`
	MaxActiveBookings                 int `envconfig:"MAX_ACTIVE_BOOKINGS" default:"10"`
	MaxPendingRequestsTotal           int `envconfig:"MAX_PENDING_REQUESTS_TOTAL" default:"5"`
	MaxCancellationsPerMonth          int `envconfig:"MAX_CANCELLATIONS_PER_MONTH" default:"5"`
	MaxActiveBookingsWithSameProvider int `envconfig:"MAX_ACTIVE_BOOKINGS_WITH_SAME_PROVIDER" default:"3"`
}

// Quota converts the config into ledger limits.
func (c LimitsConfig) Quota() quota.Limits {
	return quota.Limits{
		MaxActiveServices:                 c.MaxActiveServices,
		MaxAcceptedBookings:               c.MaxAcceptedBookings,
		MaxPendingRequestsPerService:      c.MaxPendingRequestsPerService,
		MaxActiveBookings:                 c.MaxActiveBookings,
		MaxPendingRequestsTotal:           c.MaxPendingRequestsTotal,
		MaxCancellationsPerMonth:          c.MaxCancellationsPerMonth,
		MaxActiveBookingsWithSameProvider: c.MaxActiveBookingsWithSameProvider,
	}
}

// SchedulerConfig holds the cadence of the time-driven jobs.
type SchedulerConfig struct {
	SweepInterval     time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
	SweepBatchSize    int           `envconfig:"SWEEP_BATCH_SIZE" default:"500"`
	InactionThreshold time.Duration `envconfig:"INACTION_THRESHOLD" default:"3h"`
	ProposalTTL       time.Duration `envconfig:"PROPOSAL_TTL" default:"24h"`
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"1h"`
	DisplayTimezone   string        `envconfig:"DISPLAY_TIMEZONE" default:"UTC"`
}

// Load reads configuration from BOOKING_-prefixed environment variables,
// after loading a .env file when one exists.
func Load() (*ServiceConfig, error) {
	_ = godotenv.Load()

	var cfg ServiceConfig
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects non-positive limits and intervals.
func (c *ServiceConfig) Validate() error {
	if err := c.Limits.Quota().Validate(); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"SCHEDULER_SWEEP_INTERVAL":     c.Scheduler.SweepInterval,
		"SCHEDULER_INACTION_THRESHOLD": c.Scheduler.InactionThreshold,
		"SCHEDULER_PROPOSAL_TTL":       c.Scheduler.ProposalTTL,
		"SCHEDULER_RECONCILE_INTERVAL": c.Scheduler.ReconcileInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s_%s must be positive, got %s", envPrefix, name, d)
		}
	}
	if c.Scheduler.SweepBatchSize <= 0 {
		return fmt.Errorf("%s_SCHEDULER_SWEEP_BATCH_SIZE must be positive, got %d", envPrefix, c.Scheduler.SweepBatchSize)
	}
	if _, err := time.LoadLocation(c.Scheduler.DisplayTimezone); err != nil {
		return fmt.Errorf("invalid %s_SCHEDULER_DISPLAY_TIMEZONE: %w", envPrefix, err)
	}
	return nil
}

// DisplayLocation returns the timezone audit details are rendered in.
func (c SchedulerConfig) DisplayLocation() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
