package membership

import (
	"context"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-membership/export"
	"github.com/goliatone/go-membership/metrics"
	"github.com/uptrace/bun"
)

const (
	MaxAuditActionLength      = 50
	MaxAuditEntityLength      = 50
	MaxAuditDescriptionLength = 255
	MaxSourceAddressLength    = 45

	DefaultAuditBatchSize = 500
)

// AuditEntry is what callers hand to the pipeline. Empty strings are
// stored as NULL.
type AuditEntry struct {
	ActorID       *int64
	Action        string
	Entity        string
	EntityID      *int64
	Description   string
	SourceAddress string
}

func (e AuditEntry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Action, validation.Required, validation.Length(1, MaxAuditActionLength)),
		validation.Field(&e.Entity, validation.Length(0, MaxAuditEntityLength)),
		validation.Field(&e.Description, validation.Length(0, MaxAuditDescriptionLength)),
		validation.Field(&e.SourceAddress, validation.Length(0, MaxSourceAddressLength)),
	)
}

// AuditFilters narrows Query and the exports. Zero values match everything.
type AuditFilters struct {
	ActorID  *int64     `json:"actor_id,omitempty"`
	Action   string     `json:"action,omitempty"`
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
}

func (f AuditFilters) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.ActorID != nil {
		q = q.Where("?TableAlias.actor_id = ?", *f.ActorID)
	}
	if f.Action != "" {
		q = q.Where("?TableAlias.action = ?", f.Action)
	}
	if f.DateFrom != nil {
		q = q.Where("?TableAlias.created_at >= ?", f.DateFrom.UTC())
	}
	if f.DateTo != nil {
		q = q.Where("?TableAlias.created_at <= ?", f.DateTo.UTC())
	}
	return q
}

// AuditPage is one page of Query results, newest first.
type AuditPage struct {
	Events  []*AuditEvent `json:"events"`
	Total   int           `json:"total"`
	Skip    int           `json:"skip"`
	Limit   int           `json:"limit"`
	HasMore bool          `json:"has_more"`
}

// EnrichedAuditEvent carries the actor's current keys next to the event.
// They are empty when the actor or its profile no longer exists.
type EnrichedAuditEvent struct {
	*AuditEvent
	ActorMemberNumber string `json:"actor_member_number,omitempty"`
	ActorNationalCode string `json:"actor_national_code,omitempty"`
}

// EnrichedAuditPage is AuditPage with enriched events.
type EnrichedAuditPage struct {
	Events  []EnrichedAuditEvent `json:"events"`
	Total   int                  `json:"total"`
	Skip    int                  `json:"skip"`
	Limit   int                  `json:"limit"`
	HasMore bool                 `json:"has_more"`
}

// AuditStats is the dashboard summary.
type AuditStats struct {
	Total   int            `json:"total_logs"`
	Actions map[string]int `json:"actions"`
}

// AuditPipeline records and retrieves audit events.
type AuditPipeline struct {
	repos     RepositoryManager
	now       Clock
	logger    Logger
	metrics   *metrics.Collector
	batchSize int
}

// AuditOption customizes an AuditPipeline.
type AuditOption func(*AuditPipeline)

// WithAuditClock sets the clock that stamps created_at.
func WithAuditClock(clock Clock) AuditOption {
	return func(p *AuditPipeline) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithAuditLogger overrides the logger.
func WithAuditLogger(logger Logger) AuditOption {
	return func(p *AuditPipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithAuditMetrics counts appends and export durations.
func WithAuditMetrics(m *metrics.Collector) AuditOption {
	return func(p *AuditPipeline) {
		p.metrics = m
	}
}

// WithAuditBatchSize sets how many rows exports read per query.
func WithAuditBatchSize(n int) AuditOption {
	return func(p *AuditPipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func NewAuditPipeline(repos RepositoryManager, opts ...AuditOption) *AuditPipeline {
	p := &AuditPipeline{
		repos:     repos,
		batchSize: DefaultAuditBatchSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.now = normalizeClock(p.now)
	p.logger = normalizeLogger(p.logger, "audit")
	return p
}

// Record validates and stores one event, returning any error.
func (p *AuditPipeline) Record(ctx context.Context, entry AuditEntry) (*AuditEvent, error) {
	entry = trimEntry(entry)
	if err := entry.Validate(); err != nil {
		return nil, newValidationError("invalid audit entry", err)
	}

	event := &AuditEvent{
		ActorID:       entry.ActorID,
		Action:        entry.Action,
		Entity:        nullString(entry.Entity),
		EntityID:      entry.EntityID,
		Description:   nullString(entry.Description),
		SourceAddress: nullString(entry.SourceAddress),
		CreatedAt:     p.now().UTC(),
	}
	if err := p.repos.AuditEvents().InsertTx(ctx, p.repos.DB(), event); err != nil {
		return nil, err
	}
	return event, nil
}

// Append records entry and never fails the caller. Text fields over their
// column limits are cut. Storage errors are logged and counted.
func (p *AuditPipeline) Append(ctx context.Context, entry AuditEntry) {
	entry = clampEntry(trimEntry(entry))

	if _, err := p.Record(ctx, entry); err != nil {
		p.metrics.AuditAppended(false)
		p.logger.Error("audit append failed", "action", entry.Action, "error", err)
		return
	}
	p.metrics.AuditAppended(true)
}

// Query returns one page of events, newest first. limit defaults to 50 and
// is clamped to 200.
func (p *AuditPipeline) Query(ctx context.Context, filters AuditFilters, skip, limit int) (*AuditPage, error) {
	skip, limit = clampPage(skip, limit)

	events, total, err := p.repos.AuditEvents().QueryTx(ctx, p.repos.DB(), filters, skip, limit)
	if err != nil {
		return nil, err
	}

	return &AuditPage{
		Events:  events,
		Total:   total,
		Skip:    skip,
		Limit:   limit,
		HasMore: skip+limit < total,
	}, nil
}

// QueryEnriched is Query with actor keys joined in.
func (p *AuditPipeline) QueryEnriched(ctx context.Context, filters AuditFilters, skip, limit int) (*EnrichedAuditPage, error) {
	page, err := p.Query(ctx, filters, skip, limit)
	if err != nil {
		return nil, err
	}

	events, err := p.Enrich(ctx, page.Events)
	if err != nil {
		return nil, err
	}

	return &EnrichedAuditPage{
		Events:  events,
		Total:   page.Total,
		Skip:    page.Skip,
		Limit:   page.Limit,
		HasMore: page.HasMore,
	}, nil
}

// Enrich joins the actor member number and national code onto events.
func (p *AuditPipeline) Enrich(ctx context.Context, events []*AuditEvent) ([]EnrichedAuditEvent, error) {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0, len(events))
	for _, e := range events {
		if e.ActorID == nil {
			continue
		}
		if _, ok := seen[*e.ActorID]; ok {
			continue
		}
		seen[*e.ActorID] = struct{}{}
		ids = append(ids, *e.ActorID)
	}

	actors, err := p.repos.Identities().ActorSummariesTx(ctx, p.repos.DB(), ids)
	if err != nil {
		return nil, err
	}

	out := make([]EnrichedAuditEvent, 0, len(events))
	for _, e := range events {
		enriched := EnrichedAuditEvent{AuditEvent: e}
		if e.ActorID != nil {
			actor := actors[*e.ActorID]
			enriched.ActorMemberNumber = actor.MemberNumber
			enriched.ActorNationalCode = actor.NationalCode
		}
		out = append(out, enriched)
	}
	return out, nil
}

// Stats returns the total and per action counts.
func (p *AuditPipeline) Stats(ctx context.Context) (*AuditStats, error) {
	return p.repos.AuditEvents().StatsTx(ctx, p.repos.DB())
}

// Recent returns the latest n enriched events.
func (p *AuditPipeline) Recent(ctx context.Context, n int) ([]EnrichedAuditEvent, error) {
	page, err := p.QueryEnriched(ctx, AuditFilters{}, 0, n)
	if err != nil {
		return nil, err
	}
	return page.Events, nil
}

// ExportCSV streams every matching event as CSV, newest first.
func (p *AuditPipeline) ExportCSV(ctx context.Context, w io.Writer, filters AuditFilters) error {
	return p.export(ctx, export.FormatCSV, export.NewCSVWriter(w), filters)
}

// ExportWorkbook writes every matching event as an xlsx workbook.
func (p *AuditPipeline) ExportWorkbook(ctx context.Context, w io.Writer, filters AuditFilters) error {
	ww, err := export.NewWorkbookWriter(w)
	if err != nil {
		return err
	}
	return p.export(ctx, export.FormatWorkbook, ww, filters)
}

// Export writes every matching event in format.
func (p *AuditPipeline) Export(ctx context.Context, w io.Writer, format export.Format, filters AuditFilters) error {
	switch format {
	case export.FormatWorkbook:
		return p.ExportWorkbook(ctx, w, filters)
	default:
		return p.ExportCSV(ctx, w, filters)
	}
}

func (p *AuditPipeline) export(ctx context.Context, format export.Format, rw export.RowWriter, filters AuditFilters) error {
	started := time.Now()
	defer func() {
		p.metrics.ObserveExport(string(format), time.Since(started))
	}()

	rows := 0
	err := p.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return p.repos.AuditEvents().EachBatchTx(ctx, tx, filters, p.batchSize, func(batch []*AuditEvent) error {
			for _, e := range batch {
				if err := rw.WriteRow(toExportRow(e)); err != nil {
					return err
				}
			}
			rows += len(batch)
			return nil
		})
	})
	if err != nil {
		p.logger.Error("audit export failed", "format", format, "error", err)
		if d, ok := rw.(interface{ Discard() error }); ok {
			d.Discard()
		}
		return err
	}

	if err := rw.Close(); err != nil {
		return err
	}
	p.logger.Debug("audit export finished", "format", format, "rows", rows)
	return nil
}

func toExportRow(e *AuditEvent) export.Row {
	return export.Row{
		ID:            e.ID,
		ActorID:       e.ActorID,
		Action:        e.Action,
		Entity:        e.Entity,
		EntityID:      e.EntityID,
		Description:   e.Description,
		SourceAddress: e.SourceAddress,
		CreatedAt:     e.CreatedAt,
	}
}

func trimEntry(e AuditEntry) AuditEntry {
	e.Action = strings.TrimSpace(e.Action)
	e.Entity = strings.TrimSpace(e.Entity)
	e.Description = strings.TrimSpace(e.Description)
	e.SourceAddress = strings.TrimSpace(e.SourceAddress)
	return e
}

func clampEntry(e AuditEntry) AuditEntry {
	e.Action = truncateRunes(e.Action, MaxAuditActionLength)
	e.Entity = truncateRunes(e.Entity, MaxAuditEntityLength)
	e.Description = truncateRunes(e.Description, MaxAuditDescriptionLength)
	e.SourceAddress = truncateRunes(e.SourceAddress, MaxSourceAddressLength)
	return e
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ AuditAppender = (*AuditPipeline)(nil)
