package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const channelColumns = `tenant_id, channel, phone_number_id, access_token, state,
	auto_reply_enabled, welcome_message, template_language, created_at, updated_at`

// LinkChannel creates or re-links a tenant's channel and marks it connected.
// Auto-reply settings are kept on re-link.
func (db *DB) LinkChannel(ctx context.Context, c *ChannelConfig) error {
	if c.Channel == "" {
		c.Channel = ChannelWhatsApp
	}
	if c.TemplateLanguage == "" {
		c.TemplateLanguage = "en_US"
	}
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, db.rebind(`
		INSERT INTO channel_configs (`+channelColumns+`)
		VALUES (?, ?, ?, ?, 'connected', ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, channel) DO UPDATE SET
			phone_number_id = excluded.phone_number_id,
			access_token = excluded.access_token,
			template_language = excluded.template_language,
			state = 'connected',
			updated_at = excluded.updated_at`),
		c.TenantID, c.Channel, c.PhoneNumberID, c.AccessToken,
		c.AutoReplyEnabled, c.WelcomeMessage, c.TemplateLanguage, now, now)
	if err != nil {
		return fmt.Errorf("link channel %q: %w", c.TenantID, err)
	}
	return nil
}

// SetChannelState connects or disconnects a link. Rows are never deleted.
func (db *DB) SetChannelState(ctx context.Context, tenantID, channel string, state ConnState) error {
	res, err := db.ExecContext(ctx, db.rebind(`
		UPDATE channel_configs SET state = ?, updated_at = ?
		WHERE tenant_id = ? AND channel = ?`),
		state, time.Now().UnixMilli(), tenantID, channel)
	if err != nil {
		return fmt.Errorf("set channel state: %w", err)
	}
	return expectRow(res)
}

// SetAutoReply updates the auto-reply toggle and welcome text.
func (db *DB) SetAutoReply(ctx context.Context, tenantID, channel string, enabled bool, welcome string) error {
	res, err := db.ExecContext(ctx, db.rebind(`
		UPDATE channel_configs SET auto_reply_enabled = ?, welcome_message = ?, updated_at = ?
		WHERE tenant_id = ? AND channel = ?`),
		enabled, welcome, time.Now().UnixMilli(), tenantID, channel)
	if err != nil {
		return fmt.Errorf("set auto reply: %w", err)
	}
	return expectRow(res)
}

// ConnectedChannelByRoutingKey returns the connected link for a provider
// phone number id, or nil if there is none.
func (db *DB) ConnectedChannelByRoutingKey(ctx context.Context, phoneNumberID string) (*ChannelConfig, error) {
	row := db.QueryRowContext(ctx, db.rebind(`
		SELECT `+channelColumns+` FROM channel_configs
		WHERE phone_number_id = ? AND state = 'connected'`), phoneNumberID)
	return scanChannel(row)
}

// ChannelByTenant returns a tenant's link in any state, or nil if never linked.
func (db *DB) ChannelByTenant(ctx context.Context, tenantID, channel string) (*ChannelConfig, error) {
	row := db.QueryRowContext(ctx, db.rebind(`
		SELECT `+channelColumns+` FROM channel_configs
		WHERE tenant_id = ? AND channel = ?`), tenantID, channel)
	return scanChannel(row)
}

// ChannelsByRoutingKey returns every link for a provider phone number id in
// any state, the connected one first and then most recently updated.
func (db *DB) ChannelsByRoutingKey(ctx context.Context, phoneNumberID string) ([]ChannelConfig, error) {
	rows, err := db.QueryContext(ctx, db.rebind(`
		SELECT `+channelColumns+` FROM channel_configs
		WHERE phone_number_id = ?
		ORDER BY CASE WHEN state = 'connected' THEN 0 ELSE 1 END, updated_at DESC, tenant_id`), phoneNumberID)
	if err != nil {
		return nil, err
	}
	return scanChannels(rows)
}

// ListChannels returns every link ordered by tenant.
func (db *DB) ListChannels(ctx context.Context) ([]ChannelConfig, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+channelColumns+` FROM channel_configs ORDER BY tenant_id, channel`)
	if err != nil {
		return nil, err
	}
	return scanChannels(rows)
}

func scanChannels(rows *sql.Rows) ([]ChannelConfig, error) {
	defer func() { _ = rows.Close() }()

	var out []ChannelConfig
	for rows.Next() {
		var c ChannelConfig
		if err := rows.Scan(&c.TenantID, &c.Channel, &c.PhoneNumberID, &c.AccessToken, &c.State,
			&c.AutoReplyEnabled, &c.WelcomeMessage, &c.TemplateLanguage, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanChannel(row *sql.Row) (*ChannelConfig, error) {
	var c ChannelConfig
	err := row.Scan(&c.TenantID, &c.Channel, &c.PhoneNumberID, &c.AccessToken, &c.State,
		&c.AutoReplyEnabled, &c.WelcomeMessage, &c.TemplateLanguage, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
