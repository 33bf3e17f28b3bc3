// Package core defines the domain model and contracts of the go-inbox
// pipeline: canonical messages, automation rules, rule applications,
// escalation entries, and the store/collaborator interfaces the other
// packages compose. It carries no transport or persistence dependencies.
package core
