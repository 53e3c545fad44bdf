package mailer

import (
	"errors"
	"net/smtp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSendReconcileAlertDisabled(t *testing.T) {
	log := zerolog.Nop()
	m := New(Config{}, &log)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called without SMTP config")
		return nil
	}

	require.False(t, m.Enabled())
	require.NoError(t, m.SendReconcileAlert("e1", "u1", 5, "boom"))
}

func TestSendReconcileAlert(t *testing.T) {
	log := zerolog.Nop()
	m := New(Config{
		Host:      "smtp.example.com",
		Port:      "587",
		From:      "alerts@example.com",
		Operators: []string{"ops@example.com"},
	}, &log)

	var gotAddr string
	var gotTo []string
	var gotMsg string
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.NoError(t, m.SendReconcileAlert("e1", "u1", 5, "proof generation timed out"))
	require.Equal(t, "smtp.example.com:587", gotAddr)
	require.Equal(t, []string{"ops@example.com"}, gotTo)
	require.Contains(t, gotMsg, "event e1")
	require.Contains(t, gotMsg, "User u1")
	require.Contains(t, gotMsg, "proof generation timed out")
}

func TestSendReconcileAlertError(t *testing.T) {
	log := zerolog.Nop()
	m := New(Config{Host: "smtp.example.com", Port: "587", Operators: []string{"ops@example.com"}}, &log)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	require.ErrorContains(t, m.SendReconcileAlert("e1", "u1", 5, "x"), "connection refused")
}
