package query

import (
	"context"
	"testing"

	"github.com/goliatone/go-inbox/core"
)

type stubMessageReader struct {
	message  core.Message
	messages []core.Message
	lastGet  GetMessageMessage
	lastList ListMessagesMessage
}

func (s *stubMessageReader) Get(_ context.Context, workspaceID, messageID string) (core.Message, error) {
	s.lastGet = GetMessageMessage{WorkspaceID: workspaceID, MessageID: messageID}
	return s.message, nil
}

func (s *stubMessageReader) Query(_ context.Context, workspaceID string, filter core.MessageFilter, page core.Pagination) ([]core.Message, error) {
	s.lastList = ListMessagesMessage{WorkspaceID: workspaceID, Filter: filter, Page: page}
	return s.messages, nil
}

type stubQueueReader struct {
	entries []core.EscalationEntry
	last    ListQueueMessage
}

func (s *stubQueueReader) List(_ context.Context, workspaceID string, onlyOpen bool, page core.Pagination) ([]core.EscalationEntry, error) {
	s.last = ListQueueMessage{WorkspaceID: workspaceID, OnlyOpen: onlyOpen, Page: page}
	return s.entries, nil
}

type stubApplicationReader struct {
	applications []core.RuleApplication
}

func (s *stubApplicationReader) ListByMessage(context.Context, string, string) ([]core.RuleApplication, error) {
	return s.applications, nil
}

func TestGetMessageQuery(t *testing.T) {
	reader := &stubMessageReader{message: core.Message{ID: "msg-1", WorkspaceID: "ws-1"}}
	q := NewGetMessageQuery(reader)

	out, err := q.Query(context.Background(), GetMessageMessage{WorkspaceID: "ws-1", MessageID: "msg-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if out.ID != "msg-1" || reader.lastGet.MessageID != "msg-1" {
		t.Fatalf("unexpected result %+v, call %+v", out, reader.lastGet)
	}
}

func TestListMessagesQuery_PassesFilterThrough(t *testing.T) {
	reader := &stubMessageReader{messages: []core.Message{{ID: "msg-1"}}}
	q := NewListMessagesQuery(reader)

	msg := ListMessagesMessage{
		WorkspaceID: "ws-1",
		Filter:      core.MessageFilter{Status: core.MessageStatusQueued, Channel: core.ChannelWhatsApp},
		Page:        core.Pagination{Limit: 10, Offset: 20},
	}
	out, err := q.Query(context.Background(), msg)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected passthrough result, got %d rows", len(out))
	}
	if reader.lastList.Filter.Status != core.MessageStatusQueued || reader.lastList.Page.Offset != 20 {
		t.Fatalf("filter or page not forwarded: %+v", reader.lastList)
	}
}

func TestListQueueQuery(t *testing.T) {
	reader := &stubQueueReader{entries: []core.EscalationEntry{{ID: "e-1"}}}
	q := NewListQueueQuery(reader)

	out, err := q.Query(context.Background(), ListQueueMessage{WorkspaceID: "ws-1", OnlyOpen: true})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || !reader.last.OnlyOpen {
		t.Fatalf("unexpected result %+v, call %+v", out, reader.last)
	}
}

func TestListRuleApplicationsQuery(t *testing.T) {
	reader := &stubApplicationReader{applications: []core.RuleApplication{{ID: "a-1"}}}
	q := NewListRuleApplicationsQuery(reader)

	out, err := q.Query(context.Background(), ListRuleApplicationsMessage{WorkspaceID: "ws-1", MessageID: "msg-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].ID != "a-1" {
		t.Fatalf("unexpected result %+v", out)
	}
}

func TestQueries_RequireDependencies(t *testing.T) {
	if _, err := NewGetMessageQuery(nil).Query(context.Background(), GetMessageMessage{}); err == nil {
		t.Fatalf("expected dependency error for nil message reader")
	}
	if _, err := NewListQueueQuery(nil).Query(context.Background(), ListQueueMessage{}); err == nil {
		t.Fatalf("expected dependency error for nil queue reader")
	}
	if _, err := NewListRuleApplicationsQuery(nil).Query(context.Background(), ListRuleApplicationsMessage{}); err == nil {
		t.Fatalf("expected dependency error for nil application reader")
	}
}

func TestQueryMessageValidation(t *testing.T) {
	if err := (GetMessageMessage{MessageID: "m-1"}).Validate(); err == nil {
		t.Fatalf("expected missing workspace id rejected")
	}
	if err := (ListMessagesMessage{WorkspaceID: "ws-1", Page: core.Pagination{Offset: -1}}).Validate(); err == nil {
		t.Fatalf("expected negative offset rejected")
	}
	if err := (ListQueueMessage{WorkspaceID: "ws-1"}).Validate(); err != nil {
		t.Fatalf("valid queue message rejected: %v", err)
	}
	if err := (ListRuleApplicationsMessage{WorkspaceID: "ws-1"}).Validate(); err == nil {
		t.Fatalf("expected missing message id rejected")
	}
}
