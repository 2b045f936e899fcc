// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv (optional .env files) and
// github.com/caarlos0/env/v11 (struct tag parsing). Each package that needs
// configuration declares its own Config struct with `env` tags; the main
// package composes them into one struct and calls Load once at startup.
package config
