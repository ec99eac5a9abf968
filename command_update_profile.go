package membership

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// UpdateProfileMessage updates the profile of TargetID, or of the caller
// when TargetID is zero. Active and Role need an admin caller.
type UpdateProfileMessage struct {
	Caller        *Identity  `json:"-"`
	TargetID      int64      `json:"target_id,omitempty"`
	Patch         AdminPatch `json:"patch"`
	SourceAddress string     `json:"-"`
}

func (e UpdateProfileMessage) Type() string { return "member.profile.update" }

type UpdateProfileHandler struct {
	registry *Registry
	audit    AuditAppender
	logger   Logger
}

func NewUpdateProfileHandler(registry *Registry) *UpdateProfileHandler {
	return &UpdateProfileHandler{
		registry: registry,
		audit:    noopAuditAppender{},
		logger:   defLogger("commands"),
	}
}

// WithAuditAppender sets the audit sink.
func (h *UpdateProfileHandler) WithAuditAppender(audit AuditAppender) *UpdateProfileHandler {
	h.audit = normalizeAuditAppender(audit)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *UpdateProfileHandler) WithLogger(logger Logger) *UpdateProfileHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	_, err := h.Update(ctx, event)
	return err
}

// Update is Execute returning the updated identity.
func (h *UpdateProfileHandler) Update(ctx context.Context, event UpdateProfileMessage) (*Identity, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) (*Identity, error) {
	if event.Caller == nil {
		return nil, newForbiddenError(map[string]any{"reason": "no caller"})
	}

	targetID := event.TargetID
	if targetID == 0 {
		targetID = event.Caller.ID
	}

	if err := AuthorizeTarget(event.Caller, targetID); err != nil {
		return nil, err
	}

	adminFields := event.Patch.Active != nil || event.Patch.Role != nil
	if adminFields {
		if err := RequireRole(event.Caller, RoleAdmin); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	updated, err := h.registry.AdminUpdate(ctx, targetID, event.Patch)
	if err != nil {
		h.logger.Debug("profile update rejected", "target_id", targetID, "error", err)
		return nil, err
	}

	action, entity := ActionProfileUpdate, EntityProfile
	if adminFields || targetID != event.Caller.ID {
		action, entity = ActionUserUpdate, EntityIdentity
	}

	// the write is committed, the audit row must outlive the request
	h.audit.Append(context.WithoutCancel(ctx), AuditEntry{
		ActorID:       &event.Caller.ID,
		Action:        action,
		Entity:        entity,
		EntityID:      &targetID,
		Description:   "changed: " + strings.Join(patchedFields(event.Patch), ", "),
		SourceAddress: event.SourceAddress,
	})

	return updated, nil
}

func patchedFields(p AdminPatch) []string {
	var fields []string
	if p.NationalCode != nil {
		fields = append(fields, "national_code")
	}
	if p.PhoneNumber != nil {
		fields = append(fields, "phone_number")
	}
	if p.Gender != nil {
		fields = append(fields, "gender")
	}
	if p.Address != nil {
		fields = append(fields, "address")
	}
	if p.Notes != nil {
		fields = append(fields, "notes")
	}
	if p.Active != nil {
		fields = append(fields, "is_active")
	}
	if p.Role != nil {
		fields = append(fields, "role")
	}
	if len(fields) == 0 {
		fields = append(fields, "nothing")
	}
	return fields
}
