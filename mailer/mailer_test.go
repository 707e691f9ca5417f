package mailer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

func TestNewSMTPMailer_Validation(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{Username: "bot@example.com"})
	assert.Error(t, err)

	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Username: "bot@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 587, m.cfg.Port)
}

func TestSMTPMailer_Send(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Username: "bot@example.com", Password: "pw"})
	require.NoError(t, err)

	var sent *mail.Msg
	m.dial = func(ctx context.Context, msg *mail.Msg) error {
		sent = msg
		return nil
	}

	require.NoError(t, m.Send(context.Background(), "ops@example.com", "Escalation: Ticket T1 - VPN", "Please review."))
	require.NotNil(t, sent)

	var buf bytes.Buffer
	_, err = sent.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "bot@example.com")
	assert.Contains(t, raw, "ops@example.com")
	assert.Contains(t, raw, "Escalation: Ticket T1 - VPN")
	assert.Contains(t, raw, "Please review.")
}

func TestSMTPMailer_SendFailure(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Username: "bot@example.com"})
	require.NoError(t, err)
	m.dial = func(ctx context.Context, msg *mail.Msg) error { return errors.New("connection refused") }

	err = m.Send(context.Background(), "ops@example.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSMTPMailer_InvalidRecipient(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Username: "bot@example.com"})
	require.NoError(t, err)

	err = m.Send(context.Background(), "not an address", "s", "b")
	assert.Error(t, err)
}
