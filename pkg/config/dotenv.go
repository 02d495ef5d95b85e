package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// SaveCredentials merges the session and token into the .env file at path,
// keeping every other key.
func SaveCredentials(path string, session string, token string) error {
	values := map[string]string{"WPP_TOKEN": strings.TrimSpace(token)}
	if session = strings.TrimSpace(session); session != "" {
		values["WPP_SESSION"] = session
	}

	return SaveEnv(path, values)
}

// SaveEnv merges values into a .env file, creating it when absent.
func SaveEnv(path string, values map[string]string) error {
	if strings.TrimSpace(path) == "" {
		path = defaultEnvFile
	}

	current, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read env file: %w", err)
		}
		current = make(map[string]string, len(values))
	}

	for key, value := range values {
		current[key] = value
	}

	if err := godotenv.Write(current, path); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}

	return nil
}
