package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-inbox/core"
)

// metaEnvelope is the shared Facebook/Instagram webhook envelope. Entries
// carry direct messages under messaging and comment events under changes.
type metaEnvelope struct {
	Object string      `json:"object"`
	Entry  []metaEntry `json:"entry"`
}

type metaEntry struct {
	ID        string          `json:"id"`
	Messaging []metaMessaging `json:"messaging"`
	Changes   []metaChange    `json:"changes"`
}

type metaMessaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		MID  string `json:"mid"`
		Text string `json:"text"`
	} `json:"message"`
}

type metaChange struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

type metaFeedValue struct {
	Item      string `json:"item"`
	CommentID string `json:"comment_id"`
	PostID    string `json:"post_id"`
	Message   string `json:"message"`
	From      struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"from"`
}

type FacebookParser struct {
	verifier Verifier
	secrets  core.ChannelSecrets
}

func NewFacebookParser(secrets core.ChannelSecrets) *FacebookParser {
	return &FacebookParser{
		verifier: HeaderHMACVerifier{
			Header:    "X-Hub-Signature-256",
			Prefix:    "sha256=",
			Secret:    secrets.AppSecret,
			Algorithm: "sha256",
			Encoding:  "hex",
		},
		secrets: secrets,
	}
}

func (p *FacebookParser) Channel() core.Channel { return core.ChannelFacebook }

func (p *FacebookParser) Verify(ctx context.Context, req core.InboundRequest) error {
	if p == nil || p.verifier == nil {
		return signatureError("channels: facebook verifier is not configured", nil)
	}
	return p.verifier.Verify(ctx, req)
}

func (p *FacebookParser) VerifyHandshake(params HandshakeParams) (string, error) {
	return VerifyHandshake(params, p.secrets.VerifyToken)
}

func (p *FacebookParser) Parse(body []byte) (Event, error) {
	return parseMetaEnvelope(body, core.ChannelFacebook, "page")
}

func parseMetaEnvelope(body []byte, channel core.Channel, wantObject string) (Event, error) {
	var payload metaEnvelope
	if err := json.Unmarshal(body, &payload); err != nil {
		return Event{}, payloadError("channels: parse webhook payload failed", err, map[string]any{"channel": channel})
	}
	object := strings.TrimSpace(strings.ToLower(payload.Object))
	if object != wantObject {
		return Event{}, payloadError(
			fmt.Sprintf("channels: unexpected webhook object %q", payload.Object),
			nil,
			map[string]any{"channel": channel},
		)
	}
	if len(payload.Entry) == 0 {
		return Event{}, payloadError("channels: webhook entry is required", nil, map[string]any{"channel": channel})
	}

	event := Event{}
	for _, entry := range payload.Entry {
		if event.AccountID == "" {
			event.AccountID = strings.TrimSpace(entry.ID)
		}
		for _, messaging := range entry.Messaging {
			msg, err := metaMessagingToMessage(channel, messaging)
			if err != nil {
				return Event{}, err
			}
			event.Messages = append(event.Messages, msg)
		}
		for _, change := range entry.Changes {
			msg, ok, err := metaChangeToMessage(channel, change)
			if err != nil {
				return Event{}, err
			}
			if ok {
				event.Messages = append(event.Messages, msg)
			}
		}
	}
	if event.AccountID == "" {
		return Event{}, payloadError("channels: webhook entry id is required", nil, map[string]any{"channel": channel})
	}
	return event, nil
}

func metaMessagingToMessage(channel core.Channel, messaging metaMessaging) (core.Message, error) {
	externalID, err := requireText("message id", messaging.Message.MID)
	if err != nil {
		return core.Message{}, err
	}
	senderID, err := requireText("sender id", messaging.Sender.ID)
	if err != nil {
		return core.Message{}, err
	}
	return core.Message{
		Channel:        channel,
		ExternalID:     externalID,
		ConversationID: senderID,
		SenderID:       senderID,
		Text:           messaging.Message.Text,
		Type:           core.MessageTypeDM,
		Status:         core.MessageStatusNew,
	}, nil
}

func metaChangeToMessage(channel core.Channel, change metaChange) (core.Message, bool, error) {
	field := strings.TrimSpace(strings.ToLower(change.Field))
	switch field {
	case "feed", "comments":
	default:
		// Other change fields (mentions, reactions, story insights) are
		// outside the ingestion contract and ignored.
		return core.Message{}, false, nil
	}
	var value metaFeedValue
	if err := json.Unmarshal(change.Value, &value); err != nil {
		return core.Message{}, false, payloadError("channels: parse change value failed", err, map[string]any{"channel": channel})
	}
	if field == "feed" && strings.TrimSpace(strings.ToLower(value.Item)) != "comment" {
		return core.Message{}, false, nil
	}
	externalID, err := requireText("comment id", value.CommentID)
	if err != nil {
		return core.Message{}, false, err
	}
	senderID, err := requireText("sender id", value.From.ID)
	if err != nil {
		return core.Message{}, false, err
	}
	return core.Message{
		Channel:        channel,
		ExternalID:     externalID,
		ConversationID: senderID,
		SenderID:       senderID,
		SenderName:     strings.TrimSpace(value.From.Name),
		Text:           value.Message,
		PostID:         strings.TrimSpace(value.PostID),
		Type:           core.MessageTypeComment,
		Status:         core.MessageStatusNew,
	}, true, nil
}

var _ Parser = (*FacebookParser)(nil)
