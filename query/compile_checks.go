package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-inbox/core"
)

var (
	_ gocmd.Querier[GetMessageMessage, core.Message]                          = (*GetMessageQuery)(nil)
	_ gocmd.Querier[ListMessagesMessage, []core.Message]                      = (*ListMessagesQuery)(nil)
	_ gocmd.Querier[ListQueueMessage, []core.EscalationEntry]                 = (*ListQueueQuery)(nil)
	_ gocmd.Querier[ListRuleApplicationsMessage, []core.RuleApplication]      = (*ListRuleApplicationsQuery)(nil)
)
