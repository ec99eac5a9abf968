package membership

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
)

// Roles stores the closed set of role rows.
type Roles interface {
	GetByName(ctx context.Context, name RoleName) (*Role, error)
	GetByNameTx(ctx context.Context, tx bun.IDB, name RoleName) (*Role, error)
	Ensure(ctx context.Context, name RoleName) (*Role, error)
	EnsureTx(ctx context.Context, tx bun.IDB, name RoleName) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
}

type roles struct {
	db *bun.DB
}

var _ Roles = (*roles)(nil)

func NewRolesRepository(db *bun.DB) Roles {
	return &roles{db: db}
}

func (r *roles) GetByName(ctx context.Context, name RoleName) (*Role, error) {
	return r.GetByNameTx(ctx, r.db, name)
}

func (r *roles) GetByNameTx(ctx context.Context, tx bun.IDB, name RoleName) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"role": string(name)})
	}
	return record, nil
}

func (r *roles) Ensure(ctx context.Context, name RoleName) (*Role, error) {
	return r.EnsureTx(ctx, r.db, name)
}

// EnsureTx returns the role row for name, inserting it first when missing.
// Concurrent inserts of the same name collapse on the unique constraint.
func (r *roles) EnsureTx(ctx context.Context, tx bun.IDB, name RoleName) (*Role, error) {
	record := &Role{
		Name:        name,
		Description: name.Description(),
	}
	if _, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (name) DO NOTHING").
		Exec(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return r.GetByNameTx(ctx, tx, name)
}

func (r *roles) List(ctx context.Context) ([]*Role, error) {
	var records []*Role
	err := r.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}
