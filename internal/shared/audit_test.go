package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuditRecordRequiresIdentity(t *testing.T) {
	logger := NewAuditLogger(nil, nil)

	err := logger.Record(context.Background(), AuditLog{Entity: "period", EntityID: "1"})
	require.Error(t, err)

	err = logger.Record(context.Background(), AuditLog{Action: ActionPeriodClose, EntityID: "1"})
	require.Error(t, err)

	err = logger.Record(context.Background(), AuditLog{Action: ActionPeriodClose, Entity: "period"})
	require.Error(t, err)
}

func TestAuditRecordNilLogger(t *testing.T) {
	var logger *AuditLogger
	err := logger.Record(context.Background(), AuditLog{Action: ActionJournalPost, Entity: "journal_entry", EntityID: "1"})
	require.Error(t, err)
}
