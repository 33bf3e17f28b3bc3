package core

import (
	"fmt"
	"strings"
	"time"
)

// ChannelSecrets carries the per-channel webhook verification material.
// Secrets are injected at startup; nothing in the pipeline reads ambient
// environment state.
type ChannelSecrets struct {
	AppSecret   string `koanf:"app_secret" mapstructure:"app_secret"`
	VerifyToken string `koanf:"verify_token" mapstructure:"verify_token"`
	// SignatureHeader overrides the default signature header name for
	// channels whose BSP uses a provider-specific header (WhatsApp).
	SignatureHeader string `koanf:"signature_header" mapstructure:"signature_header"`
}

type DispatchConfig struct {
	MaxSendAttempts    int           `koanf:"max_send_attempts" mapstructure:"max_send_attempts"`
	InitialBackoff     time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff         time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
	AIResponderTimeout time.Duration `koanf:"ai_responder_timeout" mapstructure:"ai_responder_timeout"`
}

type EscalationConfig struct {
	ConfidenceThreshold float64 `koanf:"confidence_threshold" mapstructure:"confidence_threshold"`
}

type Config struct {
	ServiceName string                    `koanf:"service_name" mapstructure:"service_name"`
	Channels    map[string]ChannelSecrets `koanf:"channels" mapstructure:"channels"`
	Dispatch    DispatchConfig            `koanf:"dispatch" mapstructure:"dispatch"`
	Escalation  EscalationConfig          `koanf:"escalation" mapstructure:"escalation"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "inbox",
		Channels:    map[string]ChannelSecrets{},
		Dispatch: DispatchConfig{
			MaxSendAttempts:    3,
			InitialBackoff:     500 * time.Millisecond,
			MaxBackoff:         5 * time.Second,
			AIResponderTimeout: 5 * time.Second,
		},
		Escalation: EscalationConfig{
			ConfidenceThreshold: 0.8,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Escalation.ConfidenceThreshold < 0 || c.Escalation.ConfidenceThreshold > 1 {
		return fmt.Errorf("core: escalation confidence_threshold must be within [0, 1]")
	}
	if c.Dispatch.MaxSendAttempts < 0 {
		return fmt.Errorf("core: dispatch max_send_attempts must not be negative")
	}
	for name := range c.Channels {
		if _, err := ParseChannel(name); err != nil {
			return fmt.Errorf("core: unknown channel %q in config", name)
		}
	}
	return nil
}

// SecretsFor returns the secrets configured for a channel; missing channels
// resolve to the zero value so verification fails closed on empty secrets.
func (c Config) SecretsFor(channel Channel) ChannelSecrets {
	if len(c.Channels) == 0 {
		return ChannelSecrets{}
	}
	return c.Channels[string(channel)]
}
