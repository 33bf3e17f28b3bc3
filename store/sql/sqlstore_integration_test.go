package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-inbox/core"
	inboxmigrations "github.com/goliatone/go-inbox/migrations"
	sqlstore "github.com/goliatone/go-inbox/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-inbox-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:inbox-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = inboxmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != inboxmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, inboxmigrations.WithValidationTargets(inboxmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func inboundMessage(externalID string) core.Message {
	return core.Message{
		WorkspaceID:    "ws-1",
		Channel:        core.ChannelInstagram,
		ExternalID:     externalID,
		ConversationID: "conv-1",
		SenderID:       "sender-1",
		SenderName:     "Noor",
		Text:           "how much is shipping?",
		Type:           core.MessageTypeDM,
	}
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"inbox_messages", "automation_rules", "rule_applications", "escalation_queue"} {
		var name string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &name); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if name != table {
			t.Fatalf("expected %s table, got %q", table, name)
		}
	}
}

func TestMessageStore_UpsertDedupAndStatusGuard(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	messages := factory.MessageStore()

	first, wasNew, err := messages.Upsert(ctx, inboundMessage("ext-1"))
	if err != nil || !wasNew {
		t.Fatalf("first upsert: wasNew=%v err=%v", wasNew, err)
	}
	if first.ID == "" || first.Status != core.MessageStatusNew {
		t.Fatalf("unexpected stored message %+v", first)
	}

	replayed, wasNew, err := messages.Upsert(ctx, inboundMessage("ext-1"))
	if err != nil {
		t.Fatalf("replay upsert: %v", err)
	}
	if wasNew || replayed.ID != first.ID {
		t.Fatalf("expected replay to return the existing row, got wasNew=%v id=%q", wasNew, replayed.ID)
	}

	if err := messages.UpdateStatus(ctx, first.ID, core.MessageStatusNew, core.MessageStatusQueued); err != nil {
		t.Fatalf("new -> queued: %v", err)
	}
	if err := messages.UpdateStatus(ctx, first.ID, core.MessageStatusNew, core.MessageStatusCompleted); err == nil {
		t.Fatalf("expected stale from-status to fail the guarded update")
	}
	if err := messages.UpdateStatus(ctx, first.ID, core.MessageStatusQueued, core.MessageStatusCompleted); err == nil {
		t.Fatalf("expected disallowed transition rejected before touching the row")
	}

	confidence := 0.87
	if err := messages.RecordAIResponse(ctx, first.ID, "Shipping is free over 50", &confidence); err != nil {
		t.Fatalf("record ai response: %v", err)
	}
	stored, err := messages.Get(ctx, "ws-1", first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.AIResponse == "" || stored.AIConfidence == nil || *stored.AIConfidence != 0.87 {
		t.Fatalf("ai response not recorded: %+v", stored)
	}

	if _, err := messages.Get(ctx, "ws-other", first.ID); err != core.ErrMessageNotFound {
		t.Fatalf("expected workspace-scoped lookup to miss, got %v", err)
	}
}

func TestRuleApplicationStore_ClaimIsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	applications := factory.RuleApplicationStore()

	app := core.RuleApplication{
		WorkspaceID:    "ws-1",
		MessageID:      "msg-1",
		ConversationID: "conv-1",
		RuleID:         "rule-1",
		ActionType:     core.ActionTypeSendDM,
	}
	claimed, err := applications.Claim(ctx, app)
	if err != nil || !claimed {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}
	claimed, err = applications.Claim(ctx, app)
	if err != nil {
		t.Fatalf("duplicate claim: %v", err)
	}
	if claimed {
		t.Fatalf("expected duplicate claim absorbed by the unique index")
	}

	other := app
	other.ActionType = core.ActionTypeSendPublicReply
	claimed, err = applications.Claim(ctx, other)
	if err != nil || !claimed {
		t.Fatalf("distinct action claim: claimed=%v err=%v", claimed, err)
	}

	hasReply, err := applications.HasSuccessfulReply(ctx, "ws-1", "conv-1")
	if err != nil {
		t.Fatalf("has successful reply: %v", err)
	}
	if !hasReply {
		t.Fatalf("expected applied reply detected for the conversation")
	}

	if err := applications.MarkStatus(ctx, "msg-1", "rule-1", core.ActionTypeSendDM, core.RuleApplicationStatusFailed, "send failed"); err != nil {
		t.Fatalf("mark status: %v", err)
	}
	trail, err := applications.ListByMessage(ctx, "ws-1", "msg-1")
	if err != nil {
		t.Fatalf("list by message: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(trail))
	}
}

func TestEscalationStore_OpenUniquenessAndClaimCAS(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	escalations := factory.EscalationStore()
	now := time.Now().UTC()

	entry := core.EscalationEntry{
		ID:          "entry-1",
		MessageID:   "msg-1",
		WorkspaceID: "ws-1",
		Reason:      "no_rule_matched",
		CreatedAt:   now,
	}
	stored, created, err := escalations.Insert(ctx, entry)
	if err != nil || !created {
		t.Fatalf("insert: created=%v err=%v", created, err)
	}

	duplicate := entry
	duplicate.ID = "entry-2"
	existing, created, err := escalations.Insert(ctx, duplicate)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if created || existing.ID != stored.ID {
		t.Fatalf("expected open entry returned instead of a second row, got created=%v id=%q", created, existing.ID)
	}

	ok, err := escalations.Claim(ctx, stored.ID, "emp-1", now)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = escalations.Claim(ctx, stored.ID, "emp-2", now)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatalf("expected compare-and-swap to reject the second claimer")
	}

	count, err := escalations.CountAssigned(ctx, "ws-1", "emp-1")
	if err != nil || count != 1 {
		t.Fatalf("count assigned: count=%d err=%v", count, err)
	}

	if err := escalations.Close(ctx, stored.ID, now.Add(time.Minute)); err != nil {
		t.Fatalf("close: %v", err)
	}

	// With the prior entry closed the message can be escalated again.
	reopened, created, err := escalations.Insert(ctx, duplicate)
	if err != nil || !created {
		t.Fatalf("insert after close: created=%v err=%v", created, err)
	}
	open, err := escalations.List(ctx, "ws-1", true, core.Pagination{})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 || open[0].ID != reopened.ID {
		t.Fatalf("expected only the reopened entry open, got %+v", open)
	}
}
