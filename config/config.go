package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

type OAuthConfig struct {
	JWTSecret string
	Issuer    string
}

// IsConfigured returns true if all required OAuth configuration is present
func (c OAuthConfig) IsConfigured() bool {
	return c.JWTSecret != "" && c.Issuer != ""
}

type WebhookConfig struct {
	SharedSecret string
	UserAgent    string
}

// IsConfigured returns true if all required webhook configuration is present
func (c WebhookConfig) IsConfigured() bool {
	return c.SharedSecret != ""
	// Note: UserAgent has a built-in default
}

type AlertConfig struct {
	SlackWebhookURL string
}

// IsConfigured returns true if error alerting is configured
func (c AlertConfig) IsConfigured() bool {
	return c.SlackWebhookURL != ""
}

type AppConfig struct {
	// Core configuration (always required)
	DatabaseURL        string
	DatabaseSchema     string
	Port               string // Optional with default "8080"
	CORSAllowedOrigins string // Optional with default "*"
	Environment        string
	ServerLogsURL      string
	UseStrictConfig    bool // If true, error when any subsystem is not fully configured

	// Subsystem configurations (grouped)
	OAuthConfig   OAuthConfig
	WebhookConfig WebhookConfig
	AlertConfig   AlertConfig
}

func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("⚠️ Could not load .env file, continuing with system env vars")
	}

	// Core required configuration
	databaseURL, err := getEnvRequired("DB_URL")
	if err != nil {
		return nil, err
	}

	databaseSchema, err := getEnvRequired("DB_SCHEMA")
	if err != nil {
		return nil, err
	}

	config := &AppConfig{
		// Core configuration
		DatabaseURL:        databaseURL,
		DatabaseSchema:     databaseSchema,
		Port:               getEnvWithDefault("PORT", "8080"),
		CORSAllowedOrigins: getEnvWithDefault("CORS_ALLOWED_ORIGINS", "*"),
		Environment:        getEnvWithDefault("ENVIRONMENT", "dev"),
		ServerLogsURL:      getEnvWithDefault("SERVER_LOGS_URL", ""),
		UseStrictConfig:    getEnvWithDefault("USE_STRICT_CONFIG", "true") == "true",

		// OAuth authorization server configuration
		OAuthConfig: OAuthConfig{
			JWTSecret: os.Getenv("OAUTH_JWT_SECRET"),
			Issuer:    getEnvWithDefault("OAUTH_ISSUER", "flowbackend"),
		},

		// Outbound webhook configuration
		WebhookConfig: WebhookConfig{
			SharedSecret: os.Getenv("WEBHOOK_SHARED_SECRET"),
			UserAgent:    getEnvWithDefault("WEBHOOK_USER_AGENT", "flowbackend-webhooks/1.0"),
		},

		// Error alerting configuration (optional)
		AlertConfig: AlertConfig{
			SlackWebhookURL: os.Getenv("SLACK_ALERT_WEBHOOK_URL"),
		},
	}

	// Log which subsystems are configured
	if config.OAuthConfig.IsConfigured() {
		log.Printf("✅ OAuth authorization server configured")
	} else {
		log.Printf("⚠️ OAuth authorization server not configured - token issuance will be disabled")
		if config.UseStrictConfig {
			return nil, fmt.Errorf("OAuth is not fully configured (USE_STRICT_CONFIG=true)")
		}
	}

	if config.WebhookConfig.IsConfigured() {
		log.Printf("✅ Webhook delivery configured")
	} else {
		log.Printf("⚠️ Webhook delivery not configured - outbound deliveries will be unsigned")
		if config.UseStrictConfig {
			return nil, fmt.Errorf("webhook delivery is not fully configured (USE_STRICT_CONFIG=true)")
		}
	}

	if config.AlertConfig.IsConfigured() {
		log.Printf("✅ Error alerting configured")
	} else {
		log.Printf("⚠️ Error alerting not configured - alerts will only be logged")
	}

	return config, nil
}

func getEnvRequired(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set", key)
	}
	return value, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
