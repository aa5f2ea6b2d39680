package utils

import (
	"fmt"
	"os"
)

// GetEnv returns the value of the environment variable or the fallback
// when it is unset.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// CreateFolder creates the folder (and parents) if it does not exist yet.
func CreateFolder(folderPath string) error {
	if _, err := os.Stat(folderPath); os.IsNotExist(err) {
		if err := os.MkdirAll(folderPath, 0755); err != nil {
			return fmt.Errorf("failed to create folder: %v", err)
		}
	}
	return nil
}
