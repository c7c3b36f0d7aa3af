/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the remittance service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	JWTSecret             string `mapstructure:"JWT_SECRET"`
	SettlementCurrency    string `mapstructure:"SETTLEMENT_CURRENCY"`
	KycAPIBaseURL         string `mapstructure:"KYC_API_BASE_URL"`
	KycPartnerID          string `mapstructure:"KYC_PARTNER_ID"`
	KycAPISecret          string `mapstructure:"KYC_API_SECRET"`
	KycCallbackURL        string `mapstructure:"KYC_CALLBACK_URL"`
	KycSubmitLimitPerHour int64  `mapstructure:"KYC_SUBMIT_LIMIT_PER_HOUR"`
	StorageBaseURL        string `mapstructure:"STORAGE_BASE_URL"`
	StorageBucket         string `mapstructure:"STORAGE_BUCKET"`
	StorageAPIKey         string `mapstructure:"STORAGE_API_KEY"`
	EmailAPIBaseURL       string `mapstructure:"EMAIL_API_BASE_URL"`
	EmailAPIKey           string `mapstructure:"EMAIL_API_KEY"`
	EmailFromAddress      string `mapstructure:"EMAIL_FROM_ADDRESS"`
	ChatAPIBaseURL        string `mapstructure:"CHAT_API_BASE_URL"`
	ChatAPIKey            string `mapstructure:"CHAT_API_KEY"`
	OperatorEmails        string `mapstructure:"OPERATOR_EMAILS"`
	OperatorChatAddresses string `mapstructure:"OPERATOR_CHAT_ADDRESSES"`
	AllowedOrigins        string `mapstructure:"ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SETTLEMENT_CURRENCY", "CNY")
	viper.SetDefault("STORAGE_BUCKET", "remit-receipts")
	viper.SetDefault("KYC_SUBMIT_LIMIT_PER_HOUR", 5)
	viper.SetDefault("ALLOWED_ORIGINS", "*")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("SETTLEMENT_CURRENCY")
	_ = viper.BindEnv("KYC_API_BASE_URL")
	_ = viper.BindEnv("KYC_PARTNER_ID")
	_ = viper.BindEnv("KYC_API_SECRET")
	_ = viper.BindEnv("KYC_CALLBACK_URL")
	_ = viper.BindEnv("KYC_SUBMIT_LIMIT_PER_HOUR")
	_ = viper.BindEnv("STORAGE_BASE_URL")
	_ = viper.BindEnv("STORAGE_BUCKET")
	_ = viper.BindEnv("STORAGE_API_KEY")
	_ = viper.BindEnv("EMAIL_API_BASE_URL")
	_ = viper.BindEnv("EMAIL_API_KEY")
	_ = viper.BindEnv("EMAIL_FROM_ADDRESS")
	_ = viper.BindEnv("CHAT_API_BASE_URL")
	_ = viper.BindEnv("CHAT_API_KEY")
	_ = viper.BindEnv("OPERATOR_EMAILS")
	_ = viper.BindEnv("OPERATOR_CHAT_ADDRESSES")
	_ = viper.BindEnv("ALLOWED_ORIGINS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Platform-injected PORT wins over SERVER_PORT.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.SettlementCurrency = strings.ToUpper(strings.TrimSpace(config.SettlementCurrency))
	if config.SettlementCurrency == "" {
		config.SettlementCurrency = "CNY"
	}
	if config.KycSubmitLimitPerHour <= 0 {
		config.KycSubmitLimitPerHour = 5
	}

	return
}

// SplitList parses a comma-separated config value into trimmed entries.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
