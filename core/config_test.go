package core

import "testing"

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	blankName := DefaultConfig()
	blankName.ServiceName = " "
	if err := blankName.Validate(); err == nil {
		t.Fatalf("expected blank service name to fail")
	}

	badThreshold := DefaultConfig()
	badThreshold.Escalation.ConfidenceThreshold = 1.5
	if err := badThreshold.Validate(); err == nil {
		t.Fatalf("expected out-of-range threshold to fail")
	}

	badAttempts := DefaultConfig()
	badAttempts.Dispatch.MaxSendAttempts = -1
	if err := badAttempts.Validate(); err == nil {
		t.Fatalf("expected negative attempt count to fail")
	}

	badChannel := DefaultConfig()
	badChannel.Channels = map[string]ChannelSecrets{"telegram": {}}
	if err := badChannel.Validate(); err == nil {
		t.Fatalf("expected unknown channel name to fail")
	}
}

func TestConfigSecretsFor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channels = map[string]ChannelSecrets{
		"facebook": {AppSecret: "fb-secret", VerifyToken: "fb-token"},
	}

	secrets := cfg.SecretsFor(ChannelFacebook)
	if secrets.AppSecret != "fb-secret" || secrets.VerifyToken != "fb-token" {
		t.Fatalf("unexpected secrets %+v", secrets)
	}

	// Missing channels resolve to zero secrets so verification fails closed.
	missing := cfg.SecretsFor(ChannelWhatsApp)
	if missing != (ChannelSecrets{}) {
		t.Fatalf("expected zero secrets for unconfigured channel, got %+v", missing)
	}
}
