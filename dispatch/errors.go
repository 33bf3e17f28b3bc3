package dispatch

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-inbox/core"
)

func dispatchError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.InboxErrorActionDispatchFailed)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func dispatchWrapError(source error, message string, metadata map[string]any) error {
	if source == nil {
		return dispatchError(message, metadata)
	}
	err := goerrors.Wrap(source, goerrors.CategoryOperation, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.InboxErrorActionDispatchFailed)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func dispatchInternal(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.InboxErrorInternal)
}
