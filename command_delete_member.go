package membership

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

type DeleteMemberMessage struct {
	Caller        *Identity `json:"-"`
	TargetID      int64     `json:"target_id"`
	SourceAddress string    `json:"-"`
}

func (e DeleteMemberMessage) Type() string { return "member.delete" }

// DeleteMemberHandler removes an identity with its profile. Admin only.
type DeleteMemberHandler struct {
	registry *Registry
	audit    AuditAppender
}

func NewDeleteMemberHandler(registry *Registry) *DeleteMemberHandler {
	return &DeleteMemberHandler{
		registry: registry,
		audit:    noopAuditAppender{},
	}
}

// WithAuditAppender sets the audit sink.
func (h *DeleteMemberHandler) WithAuditAppender(audit AuditAppender) *DeleteMemberHandler {
	h.audit = normalizeAuditAppender(audit)
	return h
}

func (h *DeleteMemberHandler) Execute(ctx context.Context, event DeleteMemberMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during member deletion",
		)
	default:
	}

	if err := RequireRole(event.Caller, RoleAdmin); err != nil {
		return err
	}

	target, err := h.registry.Get(ctx, event.TargetID)
	if err != nil {
		return err
	}

	if err := h.registry.Delete(ctx, event.TargetID); err != nil {
		return err
	}

	// the write is committed, the audit row must outlive the request
	h.audit.Append(context.WithoutCancel(ctx), AuditEntry{
		ActorID:       &event.Caller.ID,
		Action:        ActionUserDelete,
		Entity:        EntityIdentity,
		EntityID:      &event.TargetID,
		Description:   fmt.Sprintf("deleted member %s", target.MemberNumber),
		SourceAddress: event.SourceAddress,
	})
	return nil
}
