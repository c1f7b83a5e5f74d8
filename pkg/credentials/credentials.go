// Package credentials resolves the API key for the generation service.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvVar holds the API key in the environment or the dotenv file.
const EnvVar = "SUNO_API_KEY"

// ErrNoAPIKey is returned when no source provides a key.
var ErrNoAPIKey = errors.New("no API key found: set " + EnvVar + " in .env, the environment, or pass -api-key")

// Resolver looks up the key in order: explicit value, environment, dotenv file.
type Resolver struct {
	// Getenv defaults to os.Getenv.
	Getenv  func(string) string
	EnvFile string
}

func NewResolver() *Resolver {
	return &Resolver{Getenv: os.Getenv, EnvFile: ".env"}
}

// Resolve returns the first non-empty key.
func (r *Resolver) Resolve(explicit string) (string, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return key, nil
	}

	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if key := strings.TrimSpace(getenv(EnvVar)); key != "" {
		return key, nil
	}

	if r.EnvFile == "" {
		return "", ErrNoAPIKey
	}
	values, err := godotenv.Read(r.EnvFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoAPIKey
		}
		return "", fmt.Errorf("read %s: %w", r.EnvFile, err)
	}
	if key := strings.TrimSpace(values[EnvVar]); key != "" {
		return key, nil
	}
	return "", ErrNoAPIKey
}

// EnvFileExposed reports whether envFile exists while gitignoreFile does not
// mention it, i.e. the secrets could end up in a commit.
func EnvFileExposed(envFile, gitignoreFile string) bool {
	if _, err := os.Stat(envFile); err != nil {
		return false
	}
	data, err := os.ReadFile(gitignoreFile)
	if err != nil {
		return true
	}
	return !strings.Contains(string(data), ".env")
}
