package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Load reads optional .env files (missing files are ignored) and parses the
// process environment into a new T using `env` and `envDefault` struct tags.
//
// Nothing is cached: every call parses the environment again, so callers build
// their configuration once at startup and pass it down explicitly.
//
//	type Config struct {
//		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	cfg, err := config.Load[Config]()
func Load[T any](envFiles ...string) (T, error) {
	var cfg T
	if err := loadEnvFiles(envFiles...); err != nil {
		return cfg, err
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// LoadInto parses the environment into an existing struct, keeping values
// that have no matching variable. Useful for nested per-package configs.
func LoadInto[T any](v *T, envFiles ...string) error {
	if v == nil {
		return ErrNilPointer
	}
	if err := loadEnvFiles(envFiles...); err != nil {
		return err
	}
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Intended for main packages.
func MustLoad[T any](envFiles ...string) T {
	cfg, err := Load[T](envFiles...)
	if err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
	return cfg
}

func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		// The default .env file is optional.
		_ = godotenv.Load()
		return nil
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			return errors.Join(ErrEnvFile, fmt.Errorf("%s: %w", f, err))
		}
	}
	return nil
}
