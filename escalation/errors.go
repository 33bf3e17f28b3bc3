package escalation

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-inbox/core"
)

func escalationInternal(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.InboxErrorInternal)
}

func escalationBadInput(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.InboxErrorBadInput)
}

func claimConflict(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(core.InboxErrorQueueClaimConflict)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func statusConflict(source error, message string, metadata map[string]any) error {
	err := goerrors.Wrap(source, goerrors.CategoryConflict, message).
		WithCode(http.StatusConflict).
		WithTextCode(core.InboxErrorStatusConflict)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
