// Package query exposes the pipeline's read operations as go-command
// queriers.
package query

import (
	"context"

	"github.com/goliatone/go-inbox/core"
)

type MessageReader interface {
	Get(ctx context.Context, workspaceID string, messageID string) (core.Message, error)
	Query(ctx context.Context, workspaceID string, filter core.MessageFilter, page core.Pagination) ([]core.Message, error)
}

type QueueReader interface {
	List(ctx context.Context, workspaceID string, onlyOpen bool, page core.Pagination) ([]core.EscalationEntry, error)
}

type RuleApplicationReader interface {
	ListByMessage(ctx context.Context, workspaceID string, messageID string) ([]core.RuleApplication, error)
}

type GetMessageQuery struct {
	reader MessageReader
}

func NewGetMessageQuery(reader MessageReader) *GetMessageQuery {
	return &GetMessageQuery{reader: reader}
}

func (q *GetMessageQuery) Query(ctx context.Context, msg GetMessageMessage) (core.Message, error) {
	if q == nil || q.reader == nil {
		return core.Message{}, queryDependencyError("query: message reader is required")
	}
	return q.reader.Get(ctx, msg.WorkspaceID, msg.MessageID)
}

type ListMessagesQuery struct {
	reader MessageReader
}

func NewListMessagesQuery(reader MessageReader) *ListMessagesQuery {
	return &ListMessagesQuery{reader: reader}
}

func (q *ListMessagesQuery) Query(ctx context.Context, msg ListMessagesMessage) ([]core.Message, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: message reader is required")
	}
	return q.reader.Query(ctx, msg.WorkspaceID, msg.Filter, msg.Page)
}

type ListQueueQuery struct {
	reader QueueReader
}

func NewListQueueQuery(reader QueueReader) *ListQueueQuery {
	return &ListQueueQuery{reader: reader}
}

func (q *ListQueueQuery) Query(ctx context.Context, msg ListQueueMessage) ([]core.EscalationEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: queue reader is required")
	}
	return q.reader.List(ctx, msg.WorkspaceID, msg.OnlyOpen, msg.Page)
}

type ListRuleApplicationsQuery struct {
	reader RuleApplicationReader
}

func NewListRuleApplicationsQuery(reader RuleApplicationReader) *ListRuleApplicationsQuery {
	return &ListRuleApplicationsQuery{reader: reader}
}

func (q *ListRuleApplicationsQuery) Query(ctx context.Context, msg ListRuleApplicationsMessage) ([]core.RuleApplication, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: rule application reader is required")
	}
	return q.reader.ListByMessage(ctx, msg.WorkspaceID, msg.MessageID)
}
