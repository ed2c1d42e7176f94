// Package config loads flag + environment configuration shared by every
// cmd/* binary, following the env-path-probing idiom used for local
// development across the corpus (try a few .env locations, fall back to
// the process environment, never fail if none is found).
package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotenv best-effort loads the first .env file found among a few
// likely relative locations. It never fails the caller: if no file is
// found, configuration falls back entirely to real environment variables.
func LoadDotenv() {
	candidates := []string{".env", "../.env", "../../.env"}
	for _, path := range candidates {
		if err := godotenv.Load(path); err == nil {
			log.Printf("[config] loaded environment from %s", path)
			return
		}
	}
	log.Printf("[config] no .env file found in any expected location, relying on process environment")
}

// Getenv returns the environment variable named key, or fallback if unset
// or empty.
func Getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
