package channels

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/goliatone/go-inbox/core"
)

type websiteFormPayload struct {
	SiteID       string `json:"site_id"`
	SubmissionID string `json:"submission_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Message      string `json:"message"`
}

// WebsiteFormParser canonicalizes embedded contact-form submissions. Forms
// have no subscription handshake; the GET path always rejects.
type WebsiteFormParser struct {
	verifier Verifier
}

func NewWebsiteFormParser(secrets core.ChannelSecrets) *WebsiteFormParser {
	return &WebsiteFormParser{
		verifier: HeaderHMACVerifier{
			Header:    "X-Signature",
			Secret:    secrets.AppSecret,
			Algorithm: "sha256",
			Encoding:  "hex",
		},
	}
}

func (p *WebsiteFormParser) Channel() core.Channel { return core.ChannelWebsiteForm }

func (p *WebsiteFormParser) Verify(ctx context.Context, req core.InboundRequest) error {
	if p == nil || p.verifier == nil {
		return signatureError("channels: website form verifier is not configured", nil)
	}
	return p.verifier.Verify(ctx, req)
}

func (p *WebsiteFormParser) VerifyHandshake(HandshakeParams) (string, error) {
	return "", handshakeError("channels: website forms have no handshake")
}

func (p *WebsiteFormParser) Parse(body []byte) (Event, error) {
	var payload websiteFormPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Event{}, payloadError("channels: parse webhook payload failed", err, map[string]any{"channel": core.ChannelWebsiteForm})
	}
	siteID, err := requireText("site id", payload.SiteID)
	if err != nil {
		return Event{}, err
	}
	submissionID, err := requireText("submission id", payload.SubmissionID)
	if err != nil {
		return Event{}, err
	}
	text, err := requireText("message", payload.Message)
	if err != nil {
		return Event{}, err
	}

	sender := strings.TrimSpace(payload.Email)
	if sender == "" {
		sender = strings.TrimSpace(payload.Name)
	}
	if sender == "" {
		return Event{}, payloadError("channels: form sender is required", nil, map[string]any{"channel": core.ChannelWebsiteForm})
	}

	return Event{
		AccountID: siteID,
		Messages: []core.Message{{
			Channel:        core.ChannelWebsiteForm,
			ExternalID:     submissionID,
			ConversationID: sender,
			SenderID:       sender,
			SenderName:     strings.TrimSpace(payload.Name),
			Text:           text,
			Type:           core.MessageTypeForm,
			Status:         core.MessageStatusNew,
		}},
	}, nil
}

var _ Parser = (*WebsiteFormParser)(nil)
