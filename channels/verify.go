package channels

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/goliatone/go-inbox/core"
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

// HeaderHMACVerifier checks a request-body HMAC carried in a header.
// Comparison is constant time in all encodings.
type HeaderHMACVerifier struct {
	Header    string
	Prefix    string
	Secret    string
	Algorithm string // sha256 | sha1
	Encoding  string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return signatureError(
			fmt.Sprintf("channels: %s signature header is required", strings.TrimSpace(v.Header)),
			map[string]any{"channel": req.Channel},
		)
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return signatureError("channels: signature secret is required", map[string]any{"channel": req.Channel})
	}
	signature := strings.TrimPrefix(header, strings.TrimSpace(v.Prefix))
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return signatureError("channels: signature value is required", map[string]any{"channel": req.Channel})
	}

	mac := hmac.New(v.hasher(), []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return signatureError("channels: decode base64 signature failed", map[string]any{"channel": req.Channel})
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return signatureError("channels: signature verification failed", map[string]any{"channel": req.Channel})
		}
	default:
		decoded, err := hex.DecodeString(signature)
		if err != nil {
			return signatureError("channels: decode hex signature failed", map[string]any{"channel": req.Channel})
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return signatureError("channels: signature verification failed", map[string]any{"channel": req.Channel})
		}
	}
	return nil
}

func (v HeaderHMACVerifier) hasher() func() hash.Hash {
	switch strings.ToLower(strings.TrimSpace(v.Algorithm)) {
	case "sha1":
		return sha1.New
	default:
		return sha256.New
	}
}

// HandshakeParams carries the hub.* query parameters of a GET webhook
// verification challenge.
type HandshakeParams struct {
	Mode        string
	VerifyToken string
	Challenge   string
}

func HandshakeParamsFromQuery(query map[string]string) HandshakeParams {
	return HandshakeParams{
		Mode:        strings.TrimSpace(query["hub.mode"]),
		VerifyToken: strings.TrimSpace(query["hub.verify_token"]),
		Challenge:   query["hub.challenge"],
	}
}

// VerifyHandshake validates a subscription challenge and returns the
// challenge value to echo. Token mismatch rejects with a forbidden error
// carrying no detail that could aid forgery.
func VerifyHandshake(params HandshakeParams, expectedToken string) (string, error) {
	token := strings.TrimSpace(expectedToken)
	if token == "" {
		return "", handshakeError("channels: verification token is not configured")
	}
	if params.Mode != "" && params.Mode != "subscribe" {
		return "", handshakeError("channels: handshake verification failed")
	}
	if subtle.ConstantTimeCompare([]byte(params.VerifyToken), []byte(token)) != 1 {
		return "", handshakeError("channels: handshake verification failed")
	}
	return params.Challenge, nil
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
