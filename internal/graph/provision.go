package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/enliterate-io/enliterate/internal/models"
)

// ProvisionDatabase creates the per-batch database and waits for it to come
// online. Names are validated against the batch naming scheme before any
// server-side statement runs.
func ProvisionDatabase(ctx context.Context, store Store, name string, waitTimeout time.Duration) error {
	if !models.ValidGraphDatabaseName(name) {
		return fmt.Errorf("invalid graph database name %q", name)
	}
	if err := store.EnsureDatabase(ctx, name); err != nil {
		return fmt.Errorf("provisioning database %s: %w", name, err)
	}
	if err := store.WaitOnline(ctx, name, waitTimeout); err != nil {
		return fmt.Errorf("waiting for database %s: %w", name, err)
	}
	return nil
}
