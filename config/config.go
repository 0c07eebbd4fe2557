package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable through STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	AppPort string
	AppMode string
	LogMode string

	StoreBackend  string
	TxMaxAttempts int

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBMaxConns int

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	AuthTokenSecret string
	AuthIssuer      string

	PresenceTTL time.Duration

	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3Endpoint   string
	S3PublicBase string
	S3PresignTTL time.Duration

	// Location used to bucket messages into calendar days.
	Timezone string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:         getEnv("APP_PORT", "8080"),
		AppMode:         getEnv("APP_MODE", "debug"),
		LogMode:         getEnv("LOG_MODE", "development"),
		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		TxMaxAttempts:   getEnvAsInt("TX_MAX_ATTEMPTS", 25),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", "postgres"),
		DBName:          getEnv("DB_NAME", "huddle_chat"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBMaxConns:      getEnvAsInt("DB_MAX_CONNS", 10),
		RedisHost:       getEnv("REDIS_HOST", "localhost"),
		RedisPort:       getEnv("REDIS_PORT", "6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvAsInt("REDIS_DB", 0),
		AuthTokenSecret: getEnv("AUTH_TOKEN_SECRET", "change-me"),
		AuthIssuer:      getEnv("AUTH_ISSUER", ""),
		PresenceTTL:     time.Duration(getEnvAsInt("PRESENCE_TTL_SEC", 300)) * time.Second,
		S3Region:        getEnv("S3_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3PublicBase:    getEnv("S3_PUBLIC_BASE", ""),
		S3PresignTTL:    getEnvAsDuration("S3_PRESIGN_TTL", 15*time.Minute),
		Timezone:        getEnv("APP_TIMEZONE", "Local"),
	}
}

// Location resolves Timezone, falling back to the process local zone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("unknown APP_TIMEZONE %q, using local time", c.Timezone)
		return time.Local
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
