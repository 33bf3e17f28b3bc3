package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[EnqueueEscalationMessage]   = (*EnqueueEscalationCommand)(nil)
	_ gocmd.Commander[ClaimEscalationMessage]     = (*ClaimEscalationCommand)(nil)
	_ gocmd.Commander[ResolveEscalationMessage]   = (*ResolveEscalationCommand)(nil)
	_ gocmd.Commander[EscalateEscalationMessage]  = (*EscalateEscalationCommand)(nil)
	_ gocmd.Commander[UpdateMessageStatusMessage] = (*UpdateMessageStatusCommand)(nil)
)
