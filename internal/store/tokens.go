package store

import (
	"context"
	"fmt"
	"time"

	"github.com/erazemk/tracky/internal/db"
)

// RevokeToken adds a token's JTI to the revocation list.
func RevokeToken(ctx context.Context, database *db.DB, jti string, expiresAt time.Time) error {
	_, err := database.ExecContext(ctx,
		database.Rebind(`INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?)
		 ON CONFLICT (jti) DO NOTHING`),
		jti, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}

	// Expired revocations can never match a valid token.
	_, _ = database.ExecContext(ctx,
		database.Rebind(`DELETE FROM revoked_tokens WHERE expires_at < ?`), time.Now().UTC(),
	)

	return nil
}

// IsTokenRevoked checks if a token's JTI has been revoked.
func IsTokenRevoked(ctx context.Context, database *db.DB, jti string) (bool, error) {
	var count int
	err := database.QueryRowContext(ctx,
		database.Rebind(`SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?`), jti,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return count > 0, nil
}
