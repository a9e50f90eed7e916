package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string
	DBUrl    string

	JWTSecret     string
	AllowedOrigin string

	// DB Config
	DBMaxConns        int32
	DBMinConns        int32
	DBMaxConnIdleTime time.Duration

	// Carrier (shipment tracking) API
	CarrierBaseURL       string
	CarrierEmail         string
	CarrierPassword      string
	CarrierWebhookSecret string // HMAC secret for inbound pushes; empty disables the check
	CarrierTokenTTL      time.Duration
	CarrierTimeout       time.Duration

	// Payment gateway
	GatewayBaseURL       string
	GatewayKeyID         string
	GatewayKeySecret     string
	GatewayWebhookSecret string
	GatewayTimeout       time.Duration
	RefundSpeed          string

	// Stuck-entity detection windows
	StuckUnshippedAfter      time.Duration
	StuckPendingPaidAfter    time.Duration
	StuckCancelledPaidWindow time.Duration
}

func LoadConfig() *Config {
	// 1. Check if a specific config file is requested via env var
	configFile := os.Getenv("CONFIG_FILE")
	if configFile != "" {
		if err := godotenv.Load(configFile); err != nil {
			log.Printf("Warning: Failed to load config file '%s': %v", configFile, err)
		} else {
			log.Printf("Loaded configuration from %s", configFile)
		}
	} else {
		// 2. Default fallback: Try loading .env (standard local dev)
		// In docker/prod envs .env might not exist and system env vars carry everything.
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found or error loading it, relying on system env vars")
		}
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DBUrl:    getEnv("DB_DSN", ""),

		JWTSecret:     getEnv("JWT_SECRET", "default_secret_CHANGE_ME"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://localhost:3000"),

		DBMaxConns:        getInt32Env("DB_MAX_CONNS", 50),
		DBMinConns:        getInt32Env("DB_MIN_CONNS", 10),
		DBMaxConnIdleTime: getDurationEnv("DB_MAX_CONN_IDLE_TIME", time.Minute*15),

		CarrierBaseURL:       getEnv("CARRIER_BASE_URL", "https://apiv2.shiprocket.in"),
		CarrierEmail:         getEnv("CARRIER_EMAIL", ""),
		CarrierPassword:      getEnv("CARRIER_PASSWORD", ""),
		CarrierWebhookSecret: getEnv("CARRIER_WEBHOOK_SECRET", ""),
		CarrierTokenTTL:      getDurationEnv("CARRIER_TOKEN_TTL", 9*24*time.Hour),
		CarrierTimeout:       getDurationEnv("CARRIER_HTTP_TIMEOUT", 30*time.Second),

		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", "https://api.razorpay.com"),
		GatewayKeyID:         getEnv("GATEWAY_KEY_ID", ""),
		GatewayKeySecret:     getEnv("GATEWAY_KEY_SECRET", ""),
		GatewayWebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
		GatewayTimeout:       getDurationEnv("GATEWAY_HTTP_TIMEOUT", 30*time.Second),
		RefundSpeed:          getEnv("REFUND_SPEED", "normal"),

		StuckUnshippedAfter:      getDurationEnv("STUCK_UNSHIPPED_AFTER", 48*time.Hour),
		StuckPendingPaidAfter:    getDurationEnv("STUCK_PENDING_PAID_AFTER", 24*time.Hour),
		StuckCancelledPaidWindow: getDurationEnv("STUCK_CANCELLED_PAID_WINDOW", 7*24*time.Hour),
	}

	cfg.Validate()
	return cfg
}

func (c *Config) Validate() {
	if c.DBUrl == "" {
		log.Fatal("CRITICAL: DB_DSN environment variable is required")
	}
	if c.JWTSecret == "default_secret_CHANGE_ME" {
		log.Println("WARNING: Using default JWT secret. Setting up for failure in production.")
	}
	if c.GatewayWebhookSecret == "" {
		log.Println("WARNING: GATEWAY_WEBHOOK_SECRET is empty, refund webhooks will be rejected")
	}
	switch c.RefundSpeed {
	case "normal", "optimum":
	default:
		log.Fatalf("CRITICAL: REFUND_SPEED must be normal or optimum, got %q", c.RefundSpeed)
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid duration for %s, using fallback", key)
	}
	return fallback
}

func getInt32Env(key string, fallback int32) int32 {
	if value, exists := os.LookupEnv(key); exists {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
		log.Printf("Invalid int for %s, using fallback", key)
	}
	return fallback
}
