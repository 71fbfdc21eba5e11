package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellomail/internal/security/secretbox"
)

func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"EMAIL_MAIL_SERVER_ADDRESS", "EMAIL_MAIL_SERVER_PORT", "EMAIL_FROM_ADDRESS",
		"EMAIL_TEMPLATES_DIR", "SECRETBOX_MASTER_KEY", "HELLOMAIL_CONFIG", "HELLOMAIL_SERVER",
		"RATE_LIMIT_DRIVER", "RATE_LIMIT_MAX",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("FRONTEND_URL", "https://app.hello.test")
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestPreview_WithoutSMTP(t *testing.T) {
	cleanEnv(t)

	out, err := run(t, "preview", "--kind", "password_reset", "--to", "ana@example.test", "--code", "ABC123")
	require.NoError(t, err)
	assert.Contains(t, out, "Subject: Password Reset")
	assert.Contains(t, out, "ABC123")
	assert.Contains(t, out, "https://app.hello.test/pages/reset-password?c=ABC123")
}

func TestPreview_UnknownKindRejected(t *testing.T) {
	cleanEnv(t)

	_, err := run(t, "preview", "--kind", "newsletter", "--to", "ana@example.test", "--code", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newsletter")
}

func TestSend_RequiresSMTPConfig(t *testing.T) {
	cleanEnv(t)

	_, err := run(t, "send", "--to", "ana@example.test", "--code", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMAIL_MAIL_SERVER_ADDRESS")
}

func TestSeal_RoundTrip(t *testing.T) {
	cleanEnv(t)
	t.Setenv("SECRETBOX_MASTER_KEY", "cli test passphrase")

	sealed, err := run(t, "seal", "ABC123")
	require.NoError(t, err)
	sealed = strings.TrimSpace(sealed)
	require.Contains(t, sealed, "|")

	plain, err := run(t, "seal", "--open", sealed)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", strings.TrimSpace(plain))
}

func TestSeal_NeedsKey(t *testing.T) {
	cleanEnv(t)

	_, err := run(t, "seal", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), secretbox.EnvMasterKey)
}
