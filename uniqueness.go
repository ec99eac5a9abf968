package membership

import (
	"context"

	"github.com/uptrace/bun"
)

// CheckUniqueness verifies that neither natural key belongs to an identity
// other than excludeIdentityID. Registration passes 0, updates pass the id
// of the identity being changed. Empty keys are not checked.
func (r *Registry) CheckUniqueness(ctx context.Context, nationalCode, memberNumber string, excludeIdentityID int64) error {
	return r.CheckUniquenessTx(ctx, r.repos.DB(), nationalCode, memberNumber, excludeIdentityID)
}

// CheckUniquenessTx is CheckUniqueness inside an existing transaction.
// Each key is scanned on its own, so a member number owned by one record
// and a national code owned by another is still a conflict.
func (r *Registry) CheckUniquenessTx(ctx context.Context, tx bun.IDB, nationalCode, memberNumber string, excludeIdentityID int64) error {
	identities := r.repos.Identities()

	if memberNumber != "" {
		owner, err := identities.OwnerOfMemberNumberTx(ctx, tx, memberNumber)
		if err != nil {
			return err
		}
		if owner != 0 && owner != excludeIdentityID {
			return newConflictError(ConflictMemberNumber, nil)
		}
	}

	if nationalCode != "" {
		owner, err := identities.OwnerOfNationalCodeTx(ctx, tx, nationalCode)
		if err != nil {
			return err
		}
		if owner != 0 && owner != excludeIdentityID {
			return newConflictError(ConflictNationalCode, nil)
		}
	}

	return nil
}
