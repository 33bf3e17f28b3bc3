package ingress

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-inbox/core"
)

func ingressInternal(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.InboxErrorInternal)
}

func ingressBadInput(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.InboxErrorBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func workspaceUnresolved(channel core.Channel, accountID string) error {
	return goerrors.New("ingress: workspace not resolved for channel account", goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(core.InboxErrorWorkspaceUnresolved).
		WithMetadata(map[string]any{
			"channel":    string(channel),
			"account_id": accountID,
		})
}
