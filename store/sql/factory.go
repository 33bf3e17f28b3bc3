package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-inbox/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	messageStore         *MessageStore
	ruleStore            *RuleStore
	ruleApplicationStore *RuleApplicationStore
	escalationStore      *EscalationStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.messageStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) MessageStore() core.MessageStore {
	if f == nil {
		return nil
	}
	return f.messageStore
}

func (f *RepositoryFactory) RuleStore() core.RuleStore {
	if f == nil {
		return nil
	}
	return f.ruleStore
}

func (f *RepositoryFactory) RuleApplicationStore() *RuleApplicationStore {
	if f == nil {
		return nil
	}
	return f.ruleApplicationStore
}

func (f *RepositoryFactory) EscalationStore() core.EscalationStore {
	if f == nil {
		return nil
	}
	return f.escalationStore
}

func (f *RepositoryFactory) initStores() error {
	messageStore, err := NewMessageStore(f.db)
	if err != nil {
		return err
	}
	f.messageStore = messageStore

	ruleStore, err := NewRuleStore(f.db)
	if err != nil {
		return err
	}
	f.ruleStore = ruleStore

	ruleApplicationStore, err := NewRuleApplicationStore(f.db)
	if err != nil {
		return err
	}
	f.ruleApplicationStore = ruleApplicationStore

	escalationStore, err := NewEscalationStore(f.db)
	if err != nil {
		return err
	}
	f.escalationStore = escalationStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
