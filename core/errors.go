package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	InboxErrorSignatureInvalid     = "INBOX_SIGNATURE_INVALID"
	InboxErrorPayloadMalformed     = "INBOX_PAYLOAD_MALFORMED"
	InboxErrorWorkspaceUnresolved  = "INBOX_WORKSPACE_UNRESOLVED"
	InboxErrorRuleConfigInvalid    = "INBOX_RULE_CONFIG_INVALID"
	InboxErrorActionDispatchFailed = "INBOX_ACTION_DISPATCH_FAILED"
	InboxErrorAIResponderTimeout   = "INBOX_AI_RESPONDER_TIMEOUT"
	InboxErrorQueueClaimConflict   = "INBOX_QUEUE_CLAIM_CONFLICT"
	InboxErrorStatusConflict       = "INBOX_STATUS_CONFLICT"
	InboxErrorBadInput             = "INBOX_BAD_INPUT"
	InboxErrorNotFound             = "INBOX_NOT_FOUND"
	InboxErrorInternal             = "INBOX_INTERNAL_ERROR"
)

func pipelineErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureInboxErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return newInboxError(err.Error(), goerrors.CategoryAuth, InboxErrorSignatureInvalid)
	case strings.Contains(msg, "workspace") && strings.Contains(msg, "not"):
		return newInboxError(err.Error(), goerrors.CategoryNotFound, InboxErrorWorkspaceUnresolved)
	case strings.Contains(msg, "parse"), strings.Contains(msg, "malformed"), strings.Contains(msg, "unmarshal"):
		return newInboxError(err.Error(), goerrors.CategoryBadInput, InboxErrorPayloadMalformed)
	case strings.Contains(msg, "claim"), strings.Contains(msg, "already assigned"):
		return newInboxError(err.Error(), goerrors.CategoryConflict, InboxErrorQueueClaimConflict)
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return newInboxError(err.Error(), goerrors.CategoryOperation, InboxErrorAIResponderTimeout)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newInboxError(err.Error(), goerrors.CategoryBadInput, InboxErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureInboxErrorEnvelope(mapped)
}

func newInboxError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureInboxErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureInboxErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = inboxHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultInboxTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultInboxTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return InboxErrorBadInput
	case goerrors.CategoryNotFound:
		return InboxErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return InboxErrorSignatureInvalid
	case goerrors.CategoryConflict:
		return InboxErrorQueueClaimConflict
	case goerrors.CategoryOperation:
		return InboxErrorActionDispatchFailed
	default:
		return InboxErrorInternal
	}
}

func inboxHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// MapError normalizes any pipeline error into the inbox error envelope.
func MapError(err error) *goerrors.Error {
	return pipelineErrorMapper(err)
}
