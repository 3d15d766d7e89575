package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"`
}

// CheckoutConfig holds checkout behavior configuration.
type CheckoutConfig struct {
	ShippingFee       int64         `mapstructure:"shipping_fee"`        // Flat fee in VND
	PaymentWindow     time.Duration `mapstructure:"payment_window"`      // How long a gateway order stays payable
	StaleAfter        time.Duration `mapstructure:"stale_after"`         // Processing age before active provider poll
	ExpirySweepPeriod time.Duration `mapstructure:"expiry_sweep_period"` // Pending-order expiry loop interval
}

// PaymentConfig holds payment provider configuration.
type PaymentConfig struct {
	NotifyBaseURL string        `mapstructure:"notify_base_url"`
	ReturnURL     string        `mapstructure:"return_url"`
	Timeout       time.Duration `mapstructure:"timeout"` // Outbound gateway call timeout
	VNPay         VNPayConfig   `mapstructure:"vnpay"`
	MoMo          MoMoConfig    `mapstructure:"momo"`
	ZaloPay       ZaloPayConfig `mapstructure:"zalopay"`
	Stripe        StripeConfig  `mapstructure:"stripe"`
	Alipay        AlipayConfig  `mapstructure:"alipay"`
}

// VNPayConfig holds VNPay credentials.
type VNPayConfig struct {
	TmnCode    string `mapstructure:"tmn_code"`
	HashSecret string `mapstructure:"hash_secret"`
	PayURL     string `mapstructure:"pay_url"`
	APIURL     string `mapstructure:"api_url"`
}

// MoMoConfig holds MoMo credentials.
type MoMoConfig struct {
	PartnerCode string `mapstructure:"partner_code"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	Endpoint    string `mapstructure:"endpoint"`
}

// ZaloPayConfig holds ZaloPay credentials.
type ZaloPayConfig struct {
	AppID    int    `mapstructure:"app_id"`
	Key1     string `mapstructure:"key1"` // Create-order MAC key
	Key2     string `mapstructure:"key2"` // Callback MAC key
	Endpoint string `mapstructure:"endpoint"`
	QueryURL string `mapstructure:"query_url"`
}

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	SecretKey      string `mapstructure:"secret_key"`
	EndpointSecret string `mapstructure:"endpoint_secret"`
}

// AlipayConfig holds Alipay credentials.
type AlipayConfig struct {
	AppID           string `mapstructure:"app_id"`
	PrivateKey      string `mapstructure:"private_key"`
	AlipayPublicKey string `mapstructure:"alipay_public_key"`
	IsProd          bool   `mapstructure:"is_prod"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/lapstore")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("LAPSTORE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if secret := os.Getenv("LAPSTORE_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := os.Getenv("LAPSTORE_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("LAPSTORE_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if secret := os.Getenv("LAPSTORE_VNPAY_HASH_SECRET"); secret != "" {
		cfg.Payment.VNPay.HashSecret = secret
	}
	if secret := os.Getenv("LAPSTORE_MOMO_SECRET_KEY"); secret != "" {
		cfg.Payment.MoMo.SecretKey = secret
	}
	if secret := os.Getenv("LAPSTORE_STRIPE_SECRET_KEY"); secret != "" {
		cfg.Payment.Stripe.SecretKey = secret
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "lapstore")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Auth defaults
	v.SetDefault("auth.access_token_expiry", 15*time.Minute)

	// Checkout defaults
	v.SetDefault("checkout.shipping_fee", 30000)
	v.SetDefault("checkout.payment_window", 30*time.Minute)
	v.SetDefault("checkout.stale_after", 5*time.Minute)
	v.SetDefault("checkout.expiry_sweep_period", time.Minute)

	// Payment defaults
	v.SetDefault("payment.timeout", 15*time.Second)
	v.SetDefault("payment.vnpay.pay_url", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html")
	v.SetDefault("payment.vnpay.api_url", "https://sandbox.vnpayment.vn/merchant_webapi/api/transaction")
	v.SetDefault("payment.momo.endpoint", "https://test-payment.momo.vn")
	v.SetDefault("payment.zalopay.endpoint", "https://sb-openapi.zalopay.vn/v2/create")
	v.SetDefault("payment.zalopay.query_url", "https://sb-openapi.zalopay.vn/v2/query")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
