package membership

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Identities is the storage surface of the registry. Every method has a Tx
// variant so registry operations can compose them in one transaction.
type Identities interface {
	Create(ctx context.Context, identity *Identity) error
	CreateTx(ctx context.Context, tx bun.IDB, identity *Identity) error
	CreateProfileTx(ctx context.Context, tx bun.IDB, profile *Profile) error

	GetByID(ctx context.Context, id int64) (*Identity, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id int64) (*Identity, error)
	GetByMemberNumber(ctx context.Context, memberNumber string) (*Identity, error)
	GetByMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (*Identity, error)

	OwnerOfMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (int64, error)
	OwnerOfNationalCodeTx(ctx context.Context, tx bun.IDB, nationalCode string) (int64, error)

	List(ctx context.Context, skip, limit int) ([]*Identity, int, error)
	ListTx(ctx context.Context, tx bun.IDB, skip, limit int) ([]*Identity, int, error)

	UpdateTx(ctx context.Context, tx bun.IDB, identity *Identity, columns ...string) error
	UpdateProfileTx(ctx context.Context, tx bun.IDB, profile *Profile, columns ...string) error

	Delete(ctx context.Context, id int64) error
	DeleteTx(ctx context.Context, tx bun.IDB, id int64) error

	ActorSummariesTx(ctx context.Context, tx bun.IDB, ids []int64) (map[int64]ActorSummary, error)
}

// ActorSummary is the denormalized actor shown next to audit events.
type ActorSummary struct {
	MemberNumber string `json:"member_number,omitempty"`
	NationalCode string `json:"national_code,omitempty"`
}

type identities struct {
	db *bun.DB
}

var _ Identities = (*identities)(nil)

func NewIdentitiesRepository(db *bun.DB) Identities {
	return &identities{db: db}
}

func (r *identities) Create(ctx context.Context, identity *Identity) error {
	return r.CreateTx(ctx, r.db, identity)
}

func (r *identities) CreateTx(ctx context.Context, tx bun.IDB, identity *Identity) error {
	_, err := tx.NewInsert().Model(identity).Returning("*").Exec(ctx)
	return translateWriteError(err)
}

func (r *identities) CreateProfileTx(ctx context.Context, tx bun.IDB, profile *Profile) error {
	_, err := tx.NewInsert().Model(profile).Returning("*").Exec(ctx)
	return translateWriteError(err)
}

func (r *identities) GetByID(ctx context.Context, id int64) (*Identity, error) {
	return r.GetByIDTx(ctx, r.db, id)
}

func (r *identities) GetByIDTx(ctx context.Context, tx bun.IDB, id int64) (*Identity, error) {
	record := &Identity{}
	err := tx.NewSelect().
		Model(record).
		Relation("Role").
		Relation("Profile").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"id": id})
	}
	return record, nil
}

func (r *identities) GetByMemberNumber(ctx context.Context, memberNumber string) (*Identity, error) {
	return r.GetByMemberNumberTx(ctx, r.db, memberNumber)
}

func (r *identities) GetByMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (*Identity, error) {
	record := &Identity{}
	err := tx.NewSelect().
		Model(record).
		Relation("Role").
		Relation("Profile").
		Where("?TableAlias.member_number = ?", memberNumber).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"member_number": memberNumber})
	}
	return record, nil
}

// OwnerOfMemberNumberTx returns the id of the identity holding memberNumber,
// or 0 when the key is free.
func (r *identities) OwnerOfMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (int64, error) {
	var ids []int64
	err := tx.NewSelect().
		Model((*Identity)(nil)).
		Column("id").
		Where("?TableAlias.member_number = ?", memberNumber).
		Limit(1).
		Scan(ctx, &ids)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

// OwnerOfNationalCodeTx returns the id of the identity whose profile holds
// nationalCode, or 0. The owner is the identity, never the profile row.
func (r *identities) OwnerOfNationalCodeTx(ctx context.Context, tx bun.IDB, nationalCode string) (int64, error) {
	var ids []int64
	err := tx.NewSelect().
		Model((*Profile)(nil)).
		Column("identity_id").
		Where("?TableAlias.national_code = ?", nationalCode).
		Limit(1).
		Scan(ctx, &ids)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

func (r *identities) List(ctx context.Context, skip, limit int) ([]*Identity, int, error) {
	return r.ListTx(ctx, r.db, skip, limit)
}

func (r *identities) ListTx(ctx context.Context, tx bun.IDB, skip, limit int) ([]*Identity, int, error) {
	var records []*Identity
	q := tx.NewSelect().
		Model(&records).
		Relation("Role").
		Relation("Profile").
		OrderExpr("?TableAlias.id ASC").
		Offset(skip).
		Limit(limit)

	total, err := q.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *identities) UpdateTx(ctx context.Context, tx bun.IDB, identity *Identity, columns ...string) error {
	q := tx.NewUpdate().Model(identity).WherePK()
	if len(columns) > 0 {
		q = q.Column(withUpdatedAt(columns)...)
	} else {
		q = q.ExcludeColumn("id", "created_at")
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return translateWriteError(err)
	}
	return requireAffected(res, map[string]any{"id": identity.ID})
}

func (r *identities) UpdateProfileTx(ctx context.Context, tx bun.IDB, profile *Profile, columns ...string) error {
	q := tx.NewUpdate().Model(profile).WherePK()
	if len(columns) > 0 {
		q = q.Column(withUpdatedAt(columns)...)
	} else {
		q = q.ExcludeColumn("id", "identity_id", "created_at")
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return translateWriteError(err)
	}
	if err := requireAffected(res, map[string]any{"identity_id": profile.IdentityID}); err != nil {
		return ErrProfileNotFound
	}
	return nil
}

func (r *identities) Delete(ctx context.Context, id int64) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return r.DeleteTx(ctx, tx, id)
	})
}

// DeleteTx removes the profile and then the identity. Audit events keep
// their actor id.
func (r *identities) DeleteTx(ctx context.Context, tx bun.IDB, id int64) error {
	if _, err := tx.NewDelete().
		Model((*Profile)(nil)).
		Where("identity_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}

	res, err := tx.NewDelete().
		Model((*Identity)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, map[string]any{"id": id})
}

func (r *identities) ActorSummariesTx(ctx context.Context, tx bun.IDB, ids []int64) (map[int64]ActorSummary, error) {
	out := make(map[int64]ActorSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []struct {
		ID           int64          `bun:"id"`
		MemberNumber string         `bun:"member_number"`
		NationalCode sql.NullString `bun:"national_code"`
	}
	err := tx.NewSelect().
		TableExpr("identities AS idn").
		ColumnExpr("idn.id, idn.member_number, prf.national_code").
		Join("LEFT JOIN profiles AS prf ON prf.identity_id = idn.id").
		Where("idn.id IN (?)", bun.In(ids)).
		Scan(ctx, &rows)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	for _, row := range rows {
		out[row.ID] = ActorSummary{
			MemberNumber: row.MemberNumber,
			NationalCode: row.NationalCode.String,
		}
	}
	return out, nil
}

func notFoundOr(err error, meta map[string]any) error {
	if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
		clone := ErrIdentityNotFound.Clone()
		if clone == nil {
			return ErrIdentityNotFound
		}
		return clone.WithMetadata(meta)
	}
	return err
}

func requireAffected(res sql.Result, meta map[string]any) error {
	if res == nil {
		return nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return notFoundOr(sql.ErrNoRows, meta)
	}
	return nil
}

// translateWriteError maps storage unique violations to ErrConflict.
func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return newConflictError(uniqueViolationKey(err), err)
	}
	return err
}

func withUpdatedAt(columns []string) []string {
	out := make([]string, 0, len(columns)+1)
	out = append(out, columns...)
	return append(out, "updated_at")
}
