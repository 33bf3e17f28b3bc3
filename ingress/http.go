package ingress

import (
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-inbox/channels"
	"github.com/goliatone/go-inbox/core"
)

// maxWebhookBody caps a delivery at 1 MiB; channel payloads are far smaller.
const maxWebhookBody = 1 << 20

// WebhookHandler exposes the gateway at /webhooks/{channel}. GET answers the
// subscription handshake, POST ingests a delivery. The response body is an
// empty ack on success; automation outcome never changes the status code.
type WebhookHandler struct {
	Gateway *Gateway
}

func NewWebhookHandler(gateway *Gateway) *WebhookHandler {
	return &WebhookHandler{Gateway: gateway}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Gateway == nil {
		http.Error(w, "webhook gateway unavailable", http.StatusServiceUnavailable)
		return
	}

	channel, err := channelFromPath(r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.serveHandshake(w, r, channel)
	case http.MethodPost:
		h.serveDelivery(w, r, channel)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *WebhookHandler) serveHandshake(w http.ResponseWriter, r *http.Request, channel core.Channel) {
	params := channels.HandshakeParamsFromQuery(queryMap(r))
	challenge, err := h.Gateway.Handshake(channel, params)
	if err != nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

func (h *WebhookHandler) serveDelivery(w http.ResponseWriter, r *http.Request, channel core.Channel) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	result, err := h.Gateway.Process(r.Context(), core.InboundRequest{
		Channel: channel,
		Headers: headerMap(r.Header),
		Query:   queryMap(r),
		Body:    body,
	})
	if err != nil {
		status := result.StatusCode
		if status == 0 {
			if mapped := core.MapError(err); mapped != nil {
				status = mapped.Code
			} else {
				status = http.StatusInternalServerError
			}
		}
		w.WriteHeader(status)
		return
	}
	w.WriteHeader(result.StatusCode)
}

func channelFromPath(path string) (core.Channel, error) {
	trimmed := strings.Trim(path, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 || parts[len(parts)-2] != "webhooks" {
		return "", core.ErrInvalidChannel
	}
	return core.ParseChannel(parts[len(parts)-1])
}

func headerMap(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for name := range header {
		out[name] = header.Get(name)
	}
	return out
}

func queryMap(r *http.Request) map[string]string {
	values := r.URL.Query()
	out := make(map[string]string, len(values))
	for name := range values {
		out[name] = values.Get(name)
	}
	return out
}
