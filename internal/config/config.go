package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	DBHost           string
	DBPort           string
	DBUser           string
	DBPassword       string
	DBName           string
	DBSSLMode        string
	TransportURL     string
	TransportToken   string
	BotMaxRetries    int
	BotFallbackQueue uint
	BotRetryPrompt   string
	VariantPolicy    string
	SchedulerSpec    string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:             getEnv("PORT", "8080"),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBUser:           getEnv("DB_USER", "waticket"),
		DBPassword:       getEnv("DB_PASSWORD", ""),
		DBName:           getEnv("DB_NAME", "waticket"),
		DBSSLMode:        getEnv("DB_SSLMODE", "disable"),
		TransportURL:     getEnv("TRANSPORT_URL", ""),
		TransportToken:   getEnv("TRANSPORT_TOKEN", ""),
		BotMaxRetries:    getEnvInt("BOT_MAX_RETRIES", 3),
		BotFallbackQueue: uint(getEnvInt("BOT_FALLBACK_QUEUE_ID", 0)),
		BotRetryPrompt:   getEnv("BOT_RETRY_PROMPT", ""),
		VariantPolicy:    getEnv("CAMPAIGN_VARIANT_POLICY", "random"),
		SchedulerSpec:    getEnv("CAMPAIGN_SCHEDULER_SPEC", "@every 1m"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
