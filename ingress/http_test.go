package ingress

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T) (*httptest.Server, *gatewayFixture) {
	t.Helper()
	fixture := newGatewayFixture(t, nil, nil)
	server := httptest.NewServer(NewWebhookHandler(fixture.gateway))
	t.Cleanup(server.Close)
	return server, fixture
}

func TestWebhookHandler_HandshakeEchoesChallenge(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/webhooks/website_form?hub.mode=subscribe&hub.verify_token=token&hub.challenge=challenge-1")
	if err != nil {
		t.Fatalf("get handshake: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "challenge-1" {
		t.Fatalf("expected challenge echo, got %q", body)
	}
}

func TestWebhookHandler_HandshakeRejectionIsForbidden(t *testing.T) {
	server, fixture := newTestServer(t)
	fixture.parser.challenge = ""

	resp, err := http.Get(server.URL + "/webhooks/website_form?hub.mode=subscribe")
	if err != nil {
		t.Fatalf("get handshake: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestWebhookHandler_DeliveryAccepted(t *testing.T) {
	server, fixture := newTestServer(t)

	resp, err := http.Post(server.URL+"/webhooks/website_form", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("post delivery: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(fixture.storedMessages(t)) != 1 {
		t.Fatalf("expected message persisted")
	}
}

func TestWebhookHandler_BadSignatureIsUnauthorized(t *testing.T) {
	server, fixture := newTestServer(t)
	fixture.parser.verifyErr = io.ErrUnexpectedEOF

	resp, err := http.Post(server.URL+"/webhooks/website_form", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("post delivery: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWebhookHandler_UnknownPathsAndMethods(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/other/website_form")
	if err != nil {
		t.Fatalf("get unknown path: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/webhooks/telegram")
	if err != nil {
		t.Fatalf("get unknown channel: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown channel, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/webhooks/website_form", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != "GET, POST" {
		t.Fatalf("expected Allow header, got %q", allow)
	}
}
