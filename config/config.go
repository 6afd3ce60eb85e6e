package config

import (
	"log"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-driven settings for the relay.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	DBHost string `env:"DB_HOST" envDefault:"localhost"`
	DBUser string `env:"DB_USER" envDefault:"postgres"`
	DBPass string `env:"DB_PASS" envDefault:"postgres"`
	DBName string `env:"DB_NAME" envDefault:"chatapp"`
	DBPort string `env:"DB_PORT" envDefault:"5432"`

	JWTSecret string `env:"JWT_SECRET" envDefault:"your-secret-key"`

	// RedisAddr switches room membership to the Redis-backed manager
	// when set. Empty keeps the in-memory manager.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// WellKnownRooms are auto-provisioned on first join and always
	// included in chat lists.
	WellKnownRooms []string `env:"WELL_KNOWN_ROOMS" envSeparator:"," envDefault:"general,tech-talk,random"`
}

// Load reads .env (if present) and parses the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to parse environment: %v", err)
	}
	return cfg
}
