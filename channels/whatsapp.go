package channels

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/goliatone/go-inbox/core"
)

const defaultWhatsAppSignatureHeader = "X-Whatsapp-Signature"

type whatsAppEnvelope struct {
	Object string          `json:"object"`
	Entry  []whatsAppEntry `json:"entry"`
}

type whatsAppEntry struct {
	ID      string           `json:"id"`
	Changes []whatsAppChange `json:"changes"`
}

type whatsAppChange struct {
	Field string        `json:"field"`
	Value whatsAppValue `json:"value"`
}

type whatsAppValue struct {
	Metadata struct {
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []struct {
		From      string `json:"from"`
		ID        string `json:"id"`
		Timestamp string `json:"timestamp"`
		Type      string `json:"type"`
		Text      struct {
			Body string `json:"body"`
		} `json:"text"`
	} `json:"messages"`
}

// WhatsAppParser verifies the BSP's HMAC-SHA1 base64 signature. The header
// name is provider specific and configurable per deployment.
type WhatsAppParser struct {
	verifier Verifier
	secrets  core.ChannelSecrets
}

func NewWhatsAppParser(secrets core.ChannelSecrets) *WhatsAppParser {
	header := strings.TrimSpace(secrets.SignatureHeader)
	if header == "" {
		header = defaultWhatsAppSignatureHeader
	}
	return &WhatsAppParser{
		verifier: HeaderHMACVerifier{
			Header:    header,
			Secret:    secrets.AppSecret,
			Algorithm: "sha1",
			Encoding:  "base64",
		},
		secrets: secrets,
	}
}

func (p *WhatsAppParser) Channel() core.Channel { return core.ChannelWhatsApp }

func (p *WhatsAppParser) Verify(ctx context.Context, req core.InboundRequest) error {
	if p == nil || p.verifier == nil {
		return signatureError("channels: whatsapp verifier is not configured", nil)
	}
	return p.verifier.Verify(ctx, req)
}

func (p *WhatsAppParser) VerifyHandshake(params HandshakeParams) (string, error) {
	return VerifyHandshake(params, p.secrets.VerifyToken)
}

func (p *WhatsAppParser) Parse(body []byte) (Event, error) {
	var payload whatsAppEnvelope
	if err := json.Unmarshal(body, &payload); err != nil {
		return Event{}, payloadError("channels: parse webhook payload failed", err, map[string]any{"channel": core.ChannelWhatsApp})
	}
	if len(payload.Entry) == 0 {
		return Event{}, payloadError("channels: webhook entry is required", nil, map[string]any{"channel": core.ChannelWhatsApp})
	}

	event := Event{}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if strings.TrimSpace(strings.ToLower(change.Field)) != "messages" {
				continue
			}
			if event.AccountID == "" {
				event.AccountID = strings.TrimSpace(change.Value.Metadata.PhoneNumberID)
			}
			senderNames := map[string]string{}
			for _, contact := range change.Value.Contacts {
				senderNames[strings.TrimSpace(contact.WaID)] = strings.TrimSpace(contact.Profile.Name)
			}
			for _, inbound := range change.Value.Messages {
				externalID, err := requireText("message id", inbound.ID)
				if err != nil {
					return Event{}, err
				}
				senderID, err := requireText("sender id", inbound.From)
				if err != nil {
					return Event{}, err
				}
				event.Messages = append(event.Messages, core.Message{
					Channel:        core.ChannelWhatsApp,
					ExternalID:     externalID,
					ConversationID: senderID,
					SenderID:       senderID,
					SenderName:     senderNames[senderID],
					Text:           inbound.Text.Body,
					Type:           core.MessageTypeDM,
					Status:         core.MessageStatusNew,
				})
			}
		}
	}
	if event.AccountID == "" {
		return Event{}, payloadError("channels: phone number id is required", nil, map[string]any{"channel": core.ChannelWhatsApp})
	}
	return event, nil
}

var _ Parser = (*WhatsAppParser)(nil)
