package main

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellomail/internal/config"
	"github.com/dropDatabas3/hellomail/internal/email"
	"github.com/dropDatabas3/hellomail/internal/rate"
)

func TestBuildLimiter(t *testing.T) {
	var c config.Config

	l, cleanup, err := buildLimiter(context.Background(), &c)
	require.NoError(t, err)
	assert.Nil(t, l)
	cleanup()

	c.Rate.Driver = "memory"
	c.Rate.Max = 2
	c.Rate.Window = time.Minute
	l, cleanup, err = buildLimiter(context.Background(), &c)
	require.NoError(t, err)
	defer cleanup()
	assert.IsType(t, &rate.MemoryLimiter{}, l)
}

func TestBuildDeps(t *testing.T) {
	var c config.Config
	c.Templates.CacheTTL = time.Minute
	c.Frontend.URL = "https://app.hello.test"

	_, err := buildDeps(&c, nil, true)
	require.Error(t, err, "send requiere SMTP")

	d, err := buildDeps(&c, prometheus.NewRegistry(), false)
	require.NoError(t, err)
	assert.Nil(t, d.box)
	assert.NotNil(t, d.metrics)

	res, err := d.service.Send(context.Background(), email.SendRequest{
		Kind:       email.PasswordReset,
		To:         email.Mailbox{Address: "ana@example.test"},
		Activation: email.Activation{Code: "x"},
	})
	require.ErrorIs(t, err, email.ErrSendFailed)
	require.ErrorIs(t, err, errSMTPDisabled)
	assert.NotEmpty(t, res.MessageID)

	c.Email.MailServerAddress = "smtp.hello.test"
	c.Email.MailServerPort = "587"
	c.Email.FromAddress = "no-reply@hello.test"
	c.Security.SecretBoxMasterKey = "wire test passphrase"
	d, err = buildDeps(&c, nil, true)
	require.NoError(t, err)
	assert.NotNil(t, d.box)
}
