package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSecret(t *testing.T) {
	assert.Error(t, validateSecret(""))
	assert.Error(t, validateSecret("   "))
	assert.NoError(t, validateSecret("hunter2"))
}

func TestSecretInputMasksValue(t *testing.T) {
	value := "s3cret-pass"
	view := secretInput("smtp-password", &value).View()

	assert.Contains(t, view, "smtp-password")
	assert.Contains(t, view, "*")
	assert.NotContains(t, view, "s3cret-pass")
}

func TestSecretRejectsBadUsage(t *testing.T) {
	assert.Error(t, secret(nil))
	assert.Error(t, secret([]string{"set"}))
	assert.Error(t, secret([]string{"rotate", "smtp-password"}))
}
