package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads a secret using the *_FILE convention. envName+"_FILE"
// names a file holding the value and takes precedence over envName itself.
// Neither set yields "" and no error.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}

// Credentials is a username and password pair resolved from the environment.
type Credentials struct {
	Username string
	Password string
}

// Set reports whether both halves are present.
func (c Credentials) Set() bool {
	return c.Username != "" && c.Password != ""
}

// ResolveCredentials resolves <prefix>_USER and <prefix>_PASSWORD, each with
// its _FILE variant.
func ResolveCredentials(prefix string) (Credentials, error) {
	user, err := ResolveSecret(prefix + "_USER")
	if err != nil {
		return Credentials{}, err
	}
	pass, err := ResolveSecret(prefix + "_PASSWORD")
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Username: user, Password: pass}, nil
}
