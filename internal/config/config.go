// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
)

// Prefix is the environment prefix for every setting, e.g. PAYFLOW_ORDERS_TABLE.
const Prefix = "PAYFLOW"

type Config struct {
	OrdersTable        string `envconfig:"ORDERS_TABLE" default:"orders"`
	PaymentLinksTable  string `envconfig:"PAYMENT_LINKS_TABLE" default:"payment_links"`
	BillsTable         string `envconfig:"BILLS_TABLE" default:"bills"`
	PremiumTable       string `envconfig:"PREMIUM_TABLE" default:"premium_packages"`
	PackagesTable      string `envconfig:"PACKAGES_TABLE" default:"packages"`
	NotificationsTable string `envconfig:"NOTIFICATIONS_TABLE" default:"notifications"`
	IdempotencyTable   string `envconfig:"IDEMPOTENCY_TABLE" default:"idempotency"`
	CountersTable      string `envconfig:"COUNTERS_TABLE" default:"counters"`

	NotificationsQueueURL string        `envconfig:"NOTIFICATIONS_QUEUE_URL"`
	DeliveryTTL           time.Duration `envconfig:"DELIVERY_TTL" default:"48h"`
	// DeliveryLease is how long an unfinished delivery claim blocks redelivery.
	// Keep it above the worker's Lambda timeout.
	DeliveryLease time.Duration `envconfig:"DELIVERY_LEASE" default:"5m"`
	// RelayMaxAttempts is how many failed publishes park an outbox row.
	RelayMaxAttempts int `envconfig:"RELAY_MAX_ATTEMPTS" default:"10"`

	GatewayClientID    string        `envconfig:"GATEWAY_CLIENT_ID"`
	GatewayAPIKey      string        `envconfig:"GATEWAY_API_KEY"`
	GatewayChecksumKey string        `envconfig:"GATEWAY_CHECKSUM_KEY"`
	GatewayBaseURL     string        `envconfig:"GATEWAY_BASE_URL" default:"https://api-merchant.payos.vn"`
	GatewayTimeout     time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`
	ReturnURL          string        `envconfig:"RETURN_URL" default:"http://localhost:3000/payment/success"`
	CancelURL          string        `envconfig:"CANCEL_URL" default:"http://localhost:3000/payment/cancel"`

	CommissionRate float64 `envconfig:"COMMISSION_RATE" default:"0.10"`
	Timezone       string  `envconfig:"TIMEZONE" default:"Asia/Ho_Chi_Minh"`

	JWTSecret string `envconfig:"JWT_SECRET"`

	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"LaundryPayflow"`

	// Unprefixed AWS_* names are honoured too, so LocalStack setups keep working.
	AWSRegion      string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSEndpoint    string `envconfig:"AWS_ENDPOINT_OVERRIDE"`
	AWSMaxAttempts int    `envconfig:"AWS_MAX_ATTEMPTS" default:"3"`

	RunLocal bool   `envconfig:"RUN_LOCAL" default:"false"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads PAYFLOW_* variables and validates the result.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.CommissionRate < 0 || c.CommissionRate > 1 {
		return fmt.Errorf("commission rate %v out of [0, 1]", c.CommissionRate)
	}
	// an empty key makes every signature forgeable
	if !c.RunLocal {
		if c.GatewayChecksumKey == "" {
			return fmt.Errorf("gateway checksum key is required")
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("jwt secret is required")
		}
	}
	if c.DeliveryLease <= 0 {
		return fmt.Errorf("delivery lease must be positive")
	}
	if c.RelayMaxAttempts < 1 {
		return fmt.Errorf("relay max attempts must be at least 1")
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the billing timezone. Validate has already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) AWS() aws.Options {
	return aws.Options{Region: c.AWSRegion, Endpoint: c.AWSEndpoint, MaxAttempts: c.AWSMaxAttempts}
}

// CommissionBPS converts the configured fraction to basis points, rounding half up.
func (c *Config) CommissionBPS() int64 {
	return int64(c.CommissionRate*10000 + 0.5)
}
