package membership

import (
	"context"
)

// Audit action labels used by the core. The action column is free text, so
// callers outside the core may use their own labels.
const (
	ActionLoginSuccess  = "auth.login.success"
	ActionLoginFailure  = "auth.login.failure"
	ActionUserCreate    = "user.create"
	ActionUserUpdate    = "user.update"
	ActionUserDelete    = "user.delete"
	ActionProfileUpdate = "profile.update"
	ActionAuditExport   = "audit.export"
)

// Audit entity labels.
const (
	EntityIdentity = "identity"
	EntityProfile  = "profile"
	EntityAudit    = "audit_event"
)

// AuditAppenderFunc adapts a function to the AuditAppender interface.
type AuditAppenderFunc func(ctx context.Context, entry AuditEntry)

// Append implements AuditAppender.
func (f AuditAppenderFunc) Append(ctx context.Context, entry AuditEntry) {
	if f == nil {
		return
	}
	f(ctx, entry)
}

type noopAuditAppender struct{}

func (noopAuditAppender) Append(context.Context, AuditEntry) {}

func normalizeAuditAppender(a AuditAppender) AuditAppender {
	if a == nil {
		return noopAuditAppender{}
	}
	return a
}
