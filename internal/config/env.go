package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv loads a .env file into the process environment. A missing
// file is not an error so deployments can rely on real environment
// variables alone. Variables already set in the environment win.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}
