package membership

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type RegisterMemberMessage struct {
	Input         RegistrationInput `json:"input"`
	Actor         *Identity         `json:"-"`
	SourceAddress string            `json:"-"`
}

func (e RegisterMemberMessage) Type() string { return "member.register" }

// RegisterMemberHandler registers a member and records user.create.
type RegisterMemberHandler struct {
	registry *Registry
	audit    AuditAppender
	logger   Logger
}

func NewRegisterMemberHandler(registry *Registry) *RegisterMemberHandler {
	return &RegisterMemberHandler{
		registry: registry,
		audit:    noopAuditAppender{},
		logger:   defLogger("commands"),
	}
}

// WithAuditAppender sets the audit sink.
func (h *RegisterMemberHandler) WithAuditAppender(audit AuditAppender) *RegisterMemberHandler {
	h.audit = normalizeAuditAppender(audit)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterMemberHandler) WithLogger(logger Logger) *RegisterMemberHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterMemberHandler) Execute(ctx context.Context, event RegisterMemberMessage) error {
	_, err := h.Register(ctx, event)
	return err
}

// Register is Execute returning the created identity.
func (h *RegisterMemberHandler) Register(ctx context.Context, event RegisterMemberMessage) (*Identity, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during member registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterMemberHandler) execute(ctx context.Context, event RegisterMemberMessage) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	identity, err := h.registry.Register(ctx, event.Input)
	if err != nil {
		return nil, err
	}

	actorID := &identity.ID
	if event.Actor != nil {
		actorID = &event.Actor.ID
	}

	// the write is committed, the audit row must outlive the request
	h.audit.Append(context.WithoutCancel(ctx), AuditEntry{
		ActorID:       actorID,
		Action:        ActionUserCreate,
		Entity:        EntityIdentity,
		EntityID:      &identity.ID,
		Description:   fmt.Sprintf("registered member %s", identity.MemberNumber),
		SourceAddress: event.SourceAddress,
	})

	return identity, nil
}
