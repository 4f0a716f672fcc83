package repository

import (
	"context"
	"fmt"
)

// AcquireTurnLock takes a session-scoped advisory lock keyed on the
// WhatsApp thread id. It serializes concurrent turns of the same
// conversation across workers; different conversations never contend.
// The returned release function must be called on the same turn.
func (r *Repository) AcquireTurnLock(ctx context.Context, whatsappID string) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock connection: %w", err)
	}

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, whatsappID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to take turn lock: %w", err)
	}

	release := func() {
		// Unlock on a background context so a cancelled turn still frees
		// the lock before the connection goes back to the pool.
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock(hashtext($1))`, whatsappID)
		conn.Release()
	}
	return release, nil
}
