package outbound

import (
	"strings"
	"testing"

	"github.com/gotrs-io/mailbridge/internal/config"
)

func TestBuildMessage(t *testing.T) {
	msg, err := BuildMessage(Reply{
		To:        "jane@example.com",
		From:      "support@example.com",
		Subject:   "Printer on fire",
		Body:      "We put it out.",
		InReplyTo: "<abc@mail.example.com>",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw := string(msg)

	for _, want := range []string{
		"From: <support@example.com>",
		"To: <jane@example.com>",
		"Subject: Re: Printer on fire",
		"In-Reply-To: <abc@mail.example.com>",
		"References: <abc@mail.example.com>",
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("message missing %q:\n%s", want, raw)
		}
	}
	if !strings.Contains(raw, "We put it out.") {
		t.Fatalf("body missing:\n%s", raw)
	}
}

func TestBuildMessageWithoutInReplyTo(t *testing.T) {
	msg, err := BuildMessage(Reply{
		To:      "jane@example.com",
		From:    "support@example.com",
		Subject: "Hello",
		Body:    "Hi",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw := string(msg)
	if strings.Contains(raw, "In-Reply-To") || strings.Contains(raw, "References") {
		t.Fatalf("threading headers must be absent:\n%s", raw)
	}
}

func TestSmtpAuthSelection(t *testing.T) {
	s := NewSender(configWith("plain"), nil)
	if _, ok := s.smtpAuth().(*loginAuth); ok {
		t.Fatal("plain auth type must not select LOGIN")
	}
	s = NewSender(configWith("login"), nil)
	if _, ok := s.smtpAuth().(*loginAuth); !ok {
		t.Fatal("login auth type must select LOGIN")
	}
	noCreds := configWith("plain")
	noCreds.User = ""
	if auth := NewSender(noCreds, nil).smtpAuth(); auth != nil {
		t.Fatal("missing credentials must disable auth")
	}
}

func configWith(authType string) config.SMTPConfig {
	return config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		User:     "u",
		Password: "p",
		From:     "support@example.com",
		AuthType: authType,
		TLSMode:  "starttls",
	}
}
