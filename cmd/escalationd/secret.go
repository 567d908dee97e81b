package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/quality-escalation/internal/credential"
)

// secret stores or removes a keyring item such as the SMTP password named
// by mail.password_key.
func secret(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: secret set|delete <key>")
	}
	action, key := args[0], args[1]

	switch action {
	case "set":
		var value string
		err := huh.NewForm(huh.NewGroup(secretInput(key, &value))).Run()
		if errors.Is(err, huh.ErrUserAborted) {
			return errors.New("aborted")
		}
		if err != nil {
			return fmt.Errorf("reading secret: %w", err)
		}
		if err := credential.Set(key, value); err != nil {
			return fmt.Errorf("saving secret %s: %w", key, err)
		}
		fmt.Printf("Saved %s to the keyring.\n", key)
		return nil
	case "delete":
		return credential.Delete(key)
	default:
		return fmt.Errorf("unknown secret action %q", action)
	}
}

// secretInput is a masked prompt for one keyring value.
func secretInput(key string, value *string) *huh.Input {
	return huh.NewInput().
		Title(key).
		Description("Stored in the system keyring").
		EchoMode(huh.EchoModePassword).
		Value(value).
		Validate(validateSecret)
}

func validateSecret(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("secret must not be empty")
	}
	return nil
}
