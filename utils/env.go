package utils

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from a .env file. Values already set
// in the environment keep their existing values.
func LoadEnv(filename string) error {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		log.Printf("No %s file found, using system environment variables only", filename)
		return nil
	}

	if err := godotenv.Load(filename); err != nil {
		return err
	}
	log.Printf("Loaded environment variables from %s", filename)
	return nil
}

// LoadEnvWithFallback tries the standard .env file locations in order.
func LoadEnvWithFallback() error {
	locations := []string{
		".env",
		".env.local",
		"config/.env",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return LoadEnv(location)
		}
	}

	log.Printf("No .env files found in standard locations, using system environment only")
	return nil
}
