package channels

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-inbox/core"
)

func signatureError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.InboxErrorSignatureInvalid)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func payloadError(message string, source error, metadata map[string]any) error {
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, goerrors.CategoryBadInput, message)
	} else {
		err = goerrors.New(message, goerrors.CategoryBadInput)
	}
	err = err.
		WithCode(http.StatusBadRequest).
		WithTextCode(core.InboxErrorPayloadMalformed)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func handshakeError(message string) error {
	return goerrors.New(message, goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(core.InboxErrorSignatureInvalid)
}
