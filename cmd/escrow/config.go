package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/escrow/internal/logger"
	"github.com/nkiryanov/escrow/internal/service/payment"
)

const (
	defaultListenAddr        = "localhost:8000"
	defaultLoggingLevel      = logger.LevelInfo
	defaultEnvironment       = logger.EnvProduction
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultBankTransferDelay = 2 * time.Second
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the escrow service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Some internal parts (like signing JWT tokens) uses symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string

	// Redis for Idempotency-Key responses: 'host:port' or 'redis://...' url.
	// Keys are not enforced when empty.
	RedisAddr      string
	IdempotencyTTL time.Duration

	// Simulated payment gateway
	BankTransferDelay  time.Duration
	ApprovedCardNumber string

	// Browser origins allowed to call the API; CORS is off when empty
	CORSOrigins []string

	// Usernames that get admin role on registration
	AdminUsers []string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:           defaultLoggingLevel,
		ListenAddr:         defaultListenAddr,
		Environment:        defaultEnvironment,
		IdempotencyTTL:     defaultIdempotencyTTL,
		BankTransferDelay:  defaultBankTransferDelay,
		ApprovedCardNumber: payment.DefaultApprovedCardNumber,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setList := func(o *[]string) func(value string) error {
		return func(value string) error {
			if list := splitList(value); len(list) > 0 {
				*o = list
			}
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":          setString(&c.ListenAddr),
		"DATABASE_URI":         setString(&c.DatabaseDSN),
		"SECRET_KEY":           setString(&c.SecretKey),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
		"REDIS_ADDRESS":        setString(&c.RedisAddr),
		"IDEMPOTENCY_TTL":      setDuration(&c.IdempotencyTTL),
		"BANK_TRANSFER_DELAY":  setDuration(&c.BankTransferDelay),
		"APPROVED_CARD_NUMBER": setString(&c.ApprovedCardNumber),
		"CORS_ORIGINS":         setList(&c.CORSOrigins),
		"ADMIN_USERS":          setList(&c.AdminUsers),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("escrow", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address for idempotency keys")
	fs.DurationVar(&c.IdempotencyTTL, "idempotency-ttl", c.IdempotencyTTL, "How long responses are kept for Idempotency-Key replay")
	fs.DurationVar(&c.BankTransferDelay, "bank-transfer-delay", c.BankTransferDelay, "Simulated bank transfer settlement time")
	fs.StringVar(&c.ApprovedCardNumber, "approved-card", c.ApprovedCardNumber, "The only card number the simulated gateway approves")
	fs.StringSliceVar(&c.CORSOrigins, "cors-origins", c.CORSOrigins, "Allowed CORS origins, comma separated")
	fs.StringSliceVar(&c.AdminUsers, "admin-users", c.AdminUsers, "Usernames registered as admins, comma separated")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	switch {
	case c.DatabaseDSN == "":
		return errors.New("database DSN is required")
	case c.SecretKey == "":
		return errors.New("secret key is required")
	case c.IdempotencyTTL <= 0:
		return errors.New("idempotency ttl must be positive")
	case c.BankTransferDelay < 0:
		return errors.New("bank transfer delay must not be negative")
	}
	return nil
}

func splitList(value string) []string {
	var list []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
