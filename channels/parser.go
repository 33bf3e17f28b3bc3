package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-inbox/core"
)

// Event is the canonical output of one webhook delivery: the channel-native
// account id (resolved to a workspace by the gateway) and the batch of
// messages the payload carried. Messages leave the parser without a
// workspace id.
type Event struct {
	AccountID string
	Messages  []core.Message
}

// Parser verifies and canonicalizes deliveries for one channel.
type Parser interface {
	Channel() core.Channel
	Verify(ctx context.Context, req core.InboundRequest) error
	VerifyHandshake(params HandshakeParams) (challenge string, err error)
	Parse(body []byte) (Event, error)
}

// Registry holds the closed parser set keyed by channel.
type Registry struct {
	parsers map[core.Channel]Parser
}

func NewRegistry(parsers ...Parser) (*Registry, error) {
	registry := &Registry{parsers: map[core.Channel]Parser{}}
	for _, parser := range parsers {
		if parser == nil {
			continue
		}
		channel := parser.Channel()
		if _, exists := registry.parsers[channel]; exists {
			return nil, fmt.Errorf("channels: parser already registered for channel %q", channel)
		}
		registry.parsers[channel] = parser
	}
	return registry, nil
}

func (r *Registry) Parser(channel core.Channel) (Parser, bool) {
	if r == nil {
		return nil, false
	}
	parser, ok := r.parsers[channel]
	return parser, ok
}

// NewDefaultRegistry builds the full adapter set from injected config.
func NewDefaultRegistry(cfg core.Config) (*Registry, error) {
	return NewRegistry(
		NewFacebookParser(cfg.SecretsFor(core.ChannelFacebook)),
		NewInstagramParser(cfg.SecretsFor(core.ChannelInstagram)),
		NewWhatsAppParser(cfg.SecretsFor(core.ChannelWhatsApp)),
		NewWebsiteFormParser(cfg.SecretsFor(core.ChannelWebsiteForm)),
	)
}

func requireText(field string, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", payloadError(fmt.Sprintf("channels: %s is required", field), nil, nil)
	}
	return trimmed, nil
}
