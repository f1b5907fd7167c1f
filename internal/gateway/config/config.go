package config

import (
	"time"

	"github.com/shopspring/decimal"

	"bullrush.com/internal/chain/tron"
	"bullrush.com/internal/payment/service"
	"bullrush.com/pkg/middleware"
	"bullrush.com/pkg/orm"
	"bullrush.com/pkg/xredis"
)

// Config is config/payment-api.yaml.
type Config struct {
	Name       string                `mapstructure:"name"`
	HTTP       HTTPConfig            `mapstructure:"http"`
	DB         DBConfig              `mapstructure:"db"`
	Redis      RedisConfig           `mapstructure:"redis"`
	Nats       NatsConfig            `mapstructure:"nats"`
	Trace      TraceConfig           `mapstructure:"trace"`
	Log        LogConfig             `mapstructure:"log"`
	Tron       tron.Config           `mapstructure:"tron"`
	Deposit    DepositConfig         `mapstructure:"deposit"`
	Referral   ReferralConfig        `mapstructure:"referral"`
	Withdrawal WithdrawalConfig      `mapstructure:"withdrawal"`
	Auth       middleware.AuthConfig `mapstructure:"auth"`
	Webhook    WebhookConfig         `mapstructure:"webhook"`
	Secret     SecretConfig          `mapstructure:"secret"`
}

type HTTPConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RateRPS        float64       `mapstructure:"rate_rps"`
	RateBurst      int           `mapstructure:"rate_burst"`

	Sentinel middleware.SentinelConfig `mapstructure:"sentinel"`
}

type DBConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
	LogLevel    string `mapstructure:"log_level"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

func (c DBConfig) Orm() *orm.Config {
	return &orm.Config{
		Driver:      c.Driver,
		DSN:         c.DSN,
		MaxIdle:     c.MaxIdle,
		MaxOpen:     c.MaxOpen,
		MaxLifetime: c.MaxLifetime,
		LogLevel:    c.LogLevel,
	}
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

func (c RedisConfig) Client() *xredis.Config {
	return &xredis.Config{Addr: c.Addr, Password: c.Password, DB: c.DB}
}

type NatsConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

type TraceConfig struct {
	Host string `mapstructure:"host"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type DepositConfig struct {
	MinAmount         string        `mapstructure:"min_amount"`
	Window            time.Duration `mapstructure:"window"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	OracleTimeout     time.Duration `mapstructure:"oracle_timeout"`
	Tolerance         string        `mapstructure:"tolerance"`
	CollectionAddress string        `mapstructure:"collection_address"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	LeaderTTL         time.Duration `mapstructure:"leader_ttl"`
}

func (c DepositConfig) Service() service.DepositConfig {
	return service.DepositConfig{
		MinAmount:         parseDecimal(c.MinAmount),
		Window:            c.Window,
		PollInterval:      c.PollInterval,
		OracleTimeout:     c.OracleTimeout,
		Tolerance:         parseDecimal(c.Tolerance),
		CollectionAddress: c.CollectionAddress,
	}
}

type ReferralConfig struct {
	Rates          []string      `mapstructure:"rates"`
	OngoingRate    string        `mapstructure:"ongoing_rate"`
	Window         time.Duration `mapstructure:"window"`
	ProfileRetries int           `mapstructure:"profile_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	Backfill       *bool         `mapstructure:"backfill"`
}

// Service falls back to the default rate table for anything left unset.
func (c ReferralConfig) Service() service.ReferralConfig {
	out := service.DefaultReferralConfig()
	if len(c.Rates) > 0 {
		out.Rates = out.Rates[:0]
		for _, r := range c.Rates {
			out.Rates = append(out.Rates, parseDecimal(r))
		}
	}
	if c.OngoingRate != "" {
		out.OngoingRate = parseDecimal(c.OngoingRate)
	}
	if c.Window > 0 {
		out.Window = c.Window
	}
	if c.ProfileRetries > 0 {
		out.ProfileRetries = c.ProfileRetries
	}
	if c.RetryDelay > 0 {
		out.RetryDelay = c.RetryDelay
	}
	if c.Backfill != nil {
		out.Backfill = *c.Backfill
	}
	return out
}

type WithdrawalConfig struct {
	MinFeeBalance string `mapstructure:"min_fee_balance"`
}

func (c WithdrawalConfig) Service() service.WithdrawalConfig {
	return service.WithdrawalConfig{MinFeeBalance: parseDecimal(c.MinFeeBalance)}
}

type WebhookConfig struct {
	Secret    string        `mapstructure:"secret"`
	Tolerance time.Duration `mapstructure:"tolerance"`
}

type SecretConfig struct {
	// MasterKey is the base64 AES-256 key sealing payout private keys.
	MasterKey string `mapstructure:"master_key"`
	// Mnemonic enables payout wallet derivation when set.
	Mnemonic string `mapstructure:"mnemonic"`
}

// parseDecimal returns zero for empty or malformed input so service defaults apply.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
