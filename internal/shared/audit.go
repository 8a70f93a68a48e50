package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Action names one auditable event. The set is closed: every mutating
// operation of the posting engine, the period lifecycle, and the
// reconciliation matcher records exactly one of these.
type Action string

const (
	ActionJournalPost   Action = "journal.post"
	ActionJournalVoid   Action = "journal.void"
	ActionPeriodClose   Action = "period.close"
	ActionPeriodReopen  Action = "period.reopen"
	ActionReconMatch    Action = "recon.match"
	ActionReconUnmatch  Action = "recon.unmatch"
	ActionReconFinalize Action = "recon.finalize"
)

// AuditLog is one immutable record in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   Action
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger persists audit records. A failed write is reported to the
// application log and returned; callers decide whether it blocks the
// mutation that triggered it.
type AuditLogger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAuditLogger returns an AuditLogger writing through the given pool.
func NewAuditLogger(pool *pgxpool.Pool, logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{pool: pool, logger: logger}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.ActorID, string(log.Action), log.Entity, log.EntityID, metaJSON, log.At)
	if err != nil {
		l.logger.Warn("audit record failed",
			slog.String("action", string(log.Action)),
			slog.String("entity", log.Entity),
			slog.String("entity_id", log.EntityID),
			slog.String("error", err.Error()))
	}
	return err
}
