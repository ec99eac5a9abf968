package membership

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	DB() bun.IDB
	Identities() Identities
	Roles() Roles
	AuditEvents() AuditEvents
}

type mngr struct {
	db          *bun.DB
	identities  Identities
	roles       Roles
	auditEvents AuditEvents
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:          db,
		identities:  NewIdentitiesRepository(db),
		roles:       NewRolesRepository(db),
		auditEvents: NewAuditEventsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("database handle should be initialized")
	}

	if m.identities == nil {
		return errors.New("repository identities should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	if m.auditEvents == nil {
		return errors.New("repository auditEvents should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) DB() bun.IDB {
	return m.db
}

func (m mngr) Identities() Identities {
	return m.identities
}

func (m mngr) Roles() Roles {
	return m.roles
}

func (m mngr) AuditEvents() AuditEvents {
	return m.auditEvents
}
