package channels

import (
	"context"

	"github.com/goliatone/go-inbox/core"
)

// InstagramParser shares the Meta envelope and signature scheme with
// Facebook; only the webhook object and comment change field differ.
type InstagramParser struct {
	verifier Verifier
	secrets  core.ChannelSecrets
}

func NewInstagramParser(secrets core.ChannelSecrets) *InstagramParser {
	return &InstagramParser{
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

func (p *InstagramParser) Channel() core.Channel { return core.ChannelInstagram }

func (p *InstagramParser) Verify(ctx context.Context, req core.InboundRequest) error {
	if p == nil || p.verifier == nil {
		return signatureError("channels: instagram verifier is not configured", nil)
	}
	return p.verifier.Verify(ctx, req)
}

func (p *InstagramParser) VerifyHandshake(params HandshakeParams) (string, error) {
	return VerifyHandshake(params, p.secrets.VerifyToken)
}

func (p *InstagramParser) Parse(body []byte) (Event, error) {
	return parseMetaEnvelope(body, core.ChannelInstagram, "instagram")
}

var _ Parser = (*InstagramParser)(nil)
