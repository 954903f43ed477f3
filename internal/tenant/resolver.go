// Package tenant maps provider routing keys and tenant ids to channel
// configuration.
package tenant

import (
	"context"

	"github.com/matheus3301/wpphub/internal/apperr"
	"github.com/matheus3301/wpphub/internal/store"
)

// Store is the subset of the store used for config lookups.
type Store interface {
	ConnectedChannelByRoutingKey(ctx context.Context, phoneNumberID string) (*store.ChannelConfig, error)
	ChannelsByRoutingKey(ctx context.Context, phoneNumberID string) ([]store.ChannelConfig, error)
	ChannelByTenant(ctx context.Context, tenantID, channel string) (*store.ChannelConfig, error)
}

// Resolver answers channel config lookups.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver backed by s.
func NewResolver(s Store) *Resolver {
	return &Resolver{store: s}
}

// ResolveRoutingKey returns the connected config that owns phoneNumberID.
// It fails with UnknownTenant when no connected config matches.
func (r *Resolver) ResolveRoutingKey(ctx context.Context, phoneNumberID string) (*store.ChannelConfig, error) {
	const op = "tenant.ResolveRoutingKey"
	if phoneNumberID == "" {
		return nil, apperr.New(apperr.UnknownTenant, op, "missing routing key")
	}
	cfg, err := r.store.ConnectedChannelByRoutingKey(ctx, phoneNumberID)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailed, op, err)
	}
	if !cfg.Connected() {
		return nil, apperr.New(apperr.UnknownTenant, op, "no connected channel for routing key "+phoneNumberID)
	}
	return cfg, nil
}

// TenantsForRoutingKey returns the tenants that ever linked phoneNumberID,
// connected or not, the connected one first. Receipts for messages sent
// before a disconnect still belong to those tenants.
func (r *Resolver) TenantsForRoutingKey(ctx context.Context, phoneNumberID string) ([]string, error) {
	const op = "tenant.TenantsForRoutingKey"
	if phoneNumberID == "" {
		return nil, apperr.New(apperr.UnknownTenant, op, "missing routing key")
	}
	links, err := r.store.ChannelsByRoutingKey(ctx, phoneNumberID)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailed, op, err)
	}
	if len(links) == 0 {
		return nil, apperr.New(apperr.UnknownTenant, op, "no channel for routing key "+phoneNumberID)
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.TenantID)
	}
	return ids, nil
}

// ResolveTenant returns the tenant's connected config, failing with
// NotConfigured when it is absent or disconnected.
func (r *Resolver) ResolveTenant(ctx context.Context, tenantID string) (*store.ChannelConfig, error) {
	const op = "tenant.ResolveTenant"
	cfg, err := r.Lookup(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, apperr.New(apperr.NotConfigured, op, "channel not configured")
	}
	if !cfg.Connected() {
		return nil, apperr.New(apperr.NotConfigured, op, "channel disconnected")
	}
	if cfg.PhoneNumberID == "" || cfg.AccessToken == "" {
		return nil, apperr.New(apperr.NotConfigured, op, "channel credentials incomplete")
	}
	return cfg, nil
}

// Lookup returns the tenant's config in any state, or nil when absent.
func (r *Resolver) Lookup(ctx context.Context, tenantID string) (*store.ChannelConfig, error) {
	cfg, err := r.store.ChannelByTenant(ctx, tenantID, store.ChannelWhatsApp)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailed, "tenant.Lookup", err)
	}
	return cfg, nil
}
