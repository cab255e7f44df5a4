package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/workbasehq/workbase/pkg/observability"
)

// Store persists audit entries in Postgres
type Store struct {
	db *sql.DB
}

// NewStore creates an audit store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts one audit entry. The database assigns id and
// occurred_at.
func (s *Store) Record(ctx context.Context, entry *Entry) error {
	detail := entry.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to marshal audit detail: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO audit_log (actor_id, workspace_id, event, detail, request_id, remote_ip)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, occurred_at`,
		entry.ActorID, entry.WorkspaceID, entry.Event, detailJSON, entry.RequestID, entry.RemoteIP,
	).Scan(&entry.ID, &entry.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Filter narrows a List call. Zero values mean "no constraint".
type Filter struct {
	WorkspaceID string
	ActorID     string
	Event       string
	Since       time.Time
	Limit       int
}

// List returns matching entries, newest first
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, occurred_at, actor_id, workspace_id, event, detail, request_id, remote_ip
		FROM audit_log
		WHERE 1=1`

	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.WorkspaceID != "" {
		query += " AND workspace_id = " + arg(filter.WorkspaceID)
	}
	if filter.ActorID != "" {
		query += " AND actor_id = " + arg(filter.ActorID)
	}
	if filter.Event != "" {
		query += " AND event = " + arg(filter.Event)
	}
	if !filter.Since.IsZero() {
		query += " AND occurred_at >= " + arg(filter.Since)
	}
	query += " ORDER BY occurred_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var detailJSON []byte
		var requestID, remoteIP sql.NullString
		err := rows.Scan(
			&entry.ID,
			&entry.OccurredAt,
			&entry.ActorID,
			&entry.WorkspaceID,
			&entry.Event,
			&detailJSON,
			&requestID,
			&remoteIP,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &entry.Detail); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit detail: %w", err)
			}
		}
		entry.RequestID = requestID.String
		entry.RemoteIP = remoteIP.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// RetentionDays is how long audit entries are kept before the sweeper
// removes them.
const RetentionDays = 90

// DeleteBefore removes entries older than the cutoff and returns how
// many were deleted.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	return result.RowsAffected()
}

// StartRetentionSweeper prunes entries past RetentionDays once a day.
// The caller owns the returned cron and stops it on shutdown.
func (s *Store) StartRetentionSweeper(logger *observability.Logger) *cron.Cron {
	c := cron.New()
	c.AddFunc("@daily", func() {
		defer observability.RecoverPanic(logger, "sweepAuditLog")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		cutoff := time.Now().AddDate(0, 0, -RetentionDays)
		deleted, err := s.DeleteBefore(ctx, cutoff)
		if err != nil {
			logger.WithError(err).Error("audit log sweep failed")
			return
		}
		if deleted > 0 {
			logger.WithField("deleted", deleted).Info("pruned audit log")
		}
	})
	c.Start()
	return c
}
