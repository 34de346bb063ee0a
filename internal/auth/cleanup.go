package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultTokenCleanupInterval = time.Hour

// RunTokenCleaner deletes expired tokens every interval until ctx is done.
func (s *Service) RunTokenCleaner(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTokenCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.PurgeExpiredTokens(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("cleanup expired tokens failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("expired tokens purged")
			}
		}
	}
}

// PurgeExpiredTokens removes every token past its expiry and reports how many went.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
