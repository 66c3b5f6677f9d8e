package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`
	Port        string `mapstructure:"port"`

	FrontendURL    string `mapstructure:"frontend_url"`
	AllowedOrigins string `mapstructure:"allowed_origins"`

	JWTSecret     string `mapstructure:"jwt_secret"`
	JWTIssuer     string `mapstructure:"jwt_issuer"`
	JWTTTLMinutes int    `mapstructure:"jwt_ttl_minutes"`

	DataDir string `mapstructure:"data_dir"`

	Routing RoutingConfig `mapstructure:"routing"`
	Mail    MailConfig    `mapstructure:"mail"`
	SMS     SMSConfig     `mapstructure:"sms"`

	// Firebase Cloud Messaging
	FirebaseCredentialsFile string `mapstructure:"firebase_credentials_file"`

	EscalationTickSeconds int `mapstructure:"escalation_tick_seconds"`
}

// RoutingConfig carries credentials for the provider chain in §4.2.
type RoutingConfig struct {
	GoogleMapsAPIKey string `mapstructure:"google_maps_api_key"`
	OSRMBaseURL      string `mapstructure:"osrm_base_url"`
	MapboxAPIKey     string `mapstructure:"mapbox_api_key"`
}

type MailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type SMSConfig struct {
	TwilioAccountSID string `mapstructure:"twilio_account_sid"`
	TwilioAuthToken  string `mapstructure:"twilio_auth_token"`
	TwilioFromNumber string `mapstructure:"twilio_from_number"`
}

// App holds the global config instance
var App Config

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) error {
	// Auto-load .env file if present (local development convenience)
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env doesn't exist (e.g. in production/Docker)
	} else {
		log.Println("✅ Loaded .env file")
	}

	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("jwt_issuer", "dispatch")
	v.SetDefault("jwt_ttl_minutes", 60*12)
	v.SetDefault("escalation_tick_seconds", 300)
	v.SetDefault("routing.osrm_base_url", "https://router.project-osrm.org")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath("./cmd/server")
		v.AddConfigPath(".")
		v.SetConfigName("dev.config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("dispatch")

	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("frontend_url", "FRONTEND_URL")
	_ = v.BindEnv("allowed_origins", "ALLOWED_ORIGINS")
	_ = v.BindEnv("jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("data_dir", "DATA_DIR")

	_ = v.BindEnv("routing.google_maps_api_key", "GOOGLE_MAPS_API_KEY")
	_ = v.BindEnv("routing.osrm_base_url", "OSRM_BASE_URL")
	_ = v.BindEnv("routing.mapbox_api_key", "MAPBOX_API_KEY")

	_ = v.BindEnv("mail.smtp_host", "SMTP_HOST")
	_ = v.BindEnv("mail.smtp_port", "SMTP_PORT")
	_ = v.BindEnv("mail.username", "SMTP_USERNAME")
	_ = v.BindEnv("mail.password", "SMTP_PASSWORD")
	_ = v.BindEnv("mail.from", "SMTP_FROM")

	_ = v.BindEnv("sms.twilio_account_sid", "TWILIO_ACCOUNT_SID")
	_ = v.BindEnv("sms.twilio_auth_token", "TWILIO_AUTH_TOKEN")
	_ = v.BindEnv("sms.twilio_from_number", "TWILIO_FROM_NUMBER")

	_ = v.BindEnv("firebase_credentials_file", "FIREBASE_CREDENTIALS_FILE")

	v.AutomaticEnv()

	// 1. Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("ℹ️  No config file found, using defaults and environment variables")
		} else {
			return err
		}
	} else {
		log.Printf("✅ Loaded config from: %s", v.ConfigFileUsed())
	}

	// 2. Unmarshal into struct
	if err := v.Unmarshal(&App); err != nil {
		return err
	}

	// 3. Backfill environment variables for any code or child process that
	// reads os.Getenv directly.
	setEnvIfEmpty("DATABASE_URL", App.DatabaseURL)
	setEnvIfEmpty("REDIS_URL", App.RedisURL)
	setEnvIfEmpty("PORT", App.Port)
	setEnvIfEmpty("FRONTEND_URL", App.FrontendURL)
	setEnvIfEmpty("ALLOWED_ORIGINS", App.AllowedOrigins)
	setEnvIfEmpty("JWT_SECRET", App.JWTSecret)
	setEnvIfEmpty("DATA_DIR", App.DataDir)

	return nil
}

func setEnvIfEmpty(key, value string) {
	if value != "" && os.Getenv(key) == "" {
		os.Setenv(key, value)
	}
}
