package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/wpphub/internal/status"
)

const messageColumns = `id, tenant_id, external_id, counterparty, direction, body, kind,
	template_name, status, error_message, timestamp, created_at, updated_at`

const insertMessage = `
	INSERT INTO messages (tenant_id, external_id, counterparty, direction, body, kind,
		template_name, status, error_message, timestamp, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(tenant_id, external_id) DO NOTHING`

// InsertMessage stores m unless a row with the same (tenant_id, external_id)
// exists. It reports whether a row was created.
func (db *DB) InsertMessage(ctx context.Context, m *Message) (bool, error) {
	res, err := db.ExecContext(ctx, db.rebind(insertMessage), messageArgs(m)...)
	if err != nil {
		return false, fmt.Errorf("insert message %q: %w", m.ExternalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IngestInbound stores an inbound message idempotently and, in the same
// transaction, counts the inbound messages from its counterparty.
func (db *DB) IngestInbound(ctx context.Context, m *Message) (*IngestResult, error) {
	m.Direction = Inbound
	if m.Status == "" {
		m.Status = status.Received
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, db.rebind(insertMessage), messageArgs(m)...)
	if err != nil {
		return nil, fmt.Errorf("insert inbound %q: %w", m.ExternalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	result := &IngestResult{Inserted: n == 1}
	if err := tx.QueryRowContext(ctx, db.rebind(`
		SELECT COUNT(*) FROM messages
		WHERE tenant_id = ? AND counterparty = ? AND direction = 'inbound'`),
		m.TenantID, m.Counterparty).Scan(&result.InboundCount); err != nil {
		return nil, fmt.Errorf("count inbound: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

// AdvanceStatus moves a message forward to the given status. Updates that
// would repeat or regress the current status leave the row untouched.
func (db *DB) AdvanceStatus(ctx context.Context, tenantID, externalID string, to status.Status, errMsg string) (StatusOutcome, error) {
	from := status.Predecessors(to)
	if len(from) > 0 {
		args := []any{to, errMsg, time.Now().UnixMilli(), tenantID, externalID}
		for _, s := range from {
			args = append(args, s)
		}
		res, err := db.ExecContext(ctx, db.rebind(`
			UPDATE messages SET status = ?, error_message = ?, updated_at = ?
			WHERE tenant_id = ? AND external_id = ? AND status IN (`+placeholders(len(from))+`)`),
			args...)
		if err != nil {
			return 0, fmt.Errorf("update status %q: %w", externalID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if n == 1 {
			return StatusApplied, nil
		}
	}

	var exists int
	err := db.QueryRowContext(ctx, db.rebind(`
		SELECT 1 FROM messages WHERE tenant_id = ? AND external_id = ?`),
		tenantID, externalID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return StatusMissing, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup message %q: %w", externalID, err)
	}
	return StatusStale, nil
}

// GetMessage returns a message by its provider id, or nil if absent.
func (db *DB) GetMessage(ctx context.Context, tenantID, externalID string) (*Message, error) {
	row := db.QueryRowContext(ctx, db.rebind(`
		SELECT `+messageColumns+` FROM messages
		WHERE tenant_id = ? AND external_id = ?`), tenantID, externalID)
	var m Message
	err := scanMessage(row.Scan, &m)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CountInbound returns how many inbound messages a counterparty sent a tenant.
func (db *DB) CountInbound(ctx context.Context, tenantID, counterparty string) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, db.rebind(`
		SELECT COUNT(*) FROM messages
		WHERE tenant_id = ? AND counterparty = ? AND direction = 'inbound'`),
		tenantID, counterparty).Scan(&count)
	return count, err
}

// ListMessages returns a tenant's messages newest first using keyset
// pagination by timestamp. An empty counterparty lists all conversations.
func (db *DB) ListMessages(ctx context.Context, tenantID, counterparty string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}

	q := `SELECT ` + messageColumns + ` FROM messages WHERE tenant_id = ? AND timestamp < ?`
	args := []any{tenantID, beforeTs}
	if counterparty != "" {
		q += " AND counterparty = ?"
		args = append(args, counterparty)
	}
	q += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, db.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := scanMessage(rows.Scan, &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func messageArgs(m *Message) []any {
	now := time.Now().UnixMilli()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	if m.UpdatedAt == 0 {
		m.UpdatedAt = now
	}
	if m.Kind == "" {
		m.Kind = KindText
	}
	return []any{
		m.TenantID, m.ExternalID, m.Counterparty, m.Direction, m.Body, m.Kind,
		m.TemplateName, m.Status, m.ErrorMessage, m.Timestamp, m.CreatedAt, m.UpdatedAt,
	}
}

func scanMessage(scan func(dest ...any) error, m *Message) error {
	return scan(&m.ID, &m.TenantID, &m.ExternalID, &m.Counterparty, &m.Direction, &m.Body, &m.Kind,
		&m.TemplateName, &m.Status, &m.ErrorMessage, &m.Timestamp, &m.CreatedAt, &m.UpdatedAt)
}
