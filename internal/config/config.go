package config

import (
	"fmt"
	"os"
)

type Config struct {
	DBSource     string
	Port         string
	Env          string
	StoreBackend string
}

func Load() (*Config, error) {
	backend := os.Getenv("STORE_BACKEND")
	if backend == "" {
		backend = "postgres"
	}
	if backend != "postgres" && backend != "memory" {
		return nil, fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", backend)
	}

	dbSource := os.Getenv("DB_SOURCE")
	if backend == "postgres" && dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	return &Config{
		DBSource:     dbSource,
		Port:         port,
		Env:          env,
		StoreBackend: backend,
	}, nil
}
