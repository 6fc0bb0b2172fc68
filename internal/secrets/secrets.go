// Package secrets resolves API credentials: environment first (works in CI
// and matches the original .env workflow), OS keychain second.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups the app's secrets in the OS keychain.
const KeyringService = "bdr-engine"

// Credential slot names, also the accepted values for -set-secret.
const (
	Apollo   = "apollo"
	Airtable = "airtable"
	OpenAI   = "openai"
	SMTP     = "smtp"
	IMAP     = "imap"
)

var envFor = map[string]string{
	Apollo:   "APOLLO_API_KEY",
	Airtable: "AIRTABLE_API_KEY",
	OpenAI:   "OPENAI_API_KEY",
	SMTP:     "SENDER_PASSWORD",
	IMAP:     "IMAP_PASSWORD",
}

// Names lists the known slots, sorted, for usage text.
func Names() []string {
	names := make([]string, 0, len(envFor))
	for n := range envFor {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the credential for a slot or an error telling the user
// exactly how to provide it.
func Resolve(name string) (string, error) {
	env, ok := envFor[name]
	if !ok {
		return "", fmt.Errorf("unknown secret %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v, nil
	}
	if pw, err := keyring.Get(KeyringService, name); err == nil && strings.TrimSpace(pw) != "" {
		return pw, nil
	}
	return "", fmt.Errorf("secret %q not found: set %s or run with -set-secret %s", name, env, name)
}

func Set(name, value string) error {
	if _, ok := envFor[name]; !ok {
		return fmt.Errorf("unknown secret %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	if strings.TrimSpace(value) == "" {
		return errors.New("secret value is empty")
	}
	return keyring.Set(KeyringService, name, value)
}

func Delete(name string) error {
	if _, ok := envFor[name]; !ok {
		return fmt.Errorf("unknown secret %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return keyring.Delete(KeyringService, name)
}
