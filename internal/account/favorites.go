package account

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrInvalidTruck = errors.New("truck id is required")

// ListFavorites returns the saved truck ids of userID in the order they were saved.
func (s *Service) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT truck_id FROM favorites WHERE user_id = ? ORDER BY created_at, truck_id`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list favorites")
	}
	defer rows.Close()

	trucks := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan favorite")
		}
		trucks = append(trucks, id)
	}
	return trucks, errors.Wrap(rows.Err(), "iterate favorites")
}

// ToggleFavorite saves truckID for the user, or removes it when already
// saved. It reports whether the truck is saved afterwards.
func (s *Service) ToggleFavorite(ctx context.Context, clientID, userID, truckID string) (bool, error) {
	truckID = strings.TrimSpace(truckID)
	if truckID == "" {
		return false, ErrInvalidTruck
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = ? AND truck_id = ?`, userID, truckID)
	if err != nil {
		return false, errors.Wrap(err, "remove favorite")
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	saved := removed == 0
	if saved {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO favorites (user_id, truck_id, created_at) VALUES (?, ?, ?)`,
			userID, truckID, time.Now().UTC(),
		); err != nil && !isUniqueViolation(err) {
			return false, errors.Wrap(err, "save favorite")
		}
	}
	s.refreshSnapshot(ctx, clientID, userID)
	return saved, nil
}

// RemoveFavorite drops truckID from the user's favorites. Removing a truck
// that is not saved is not an error.
func (s *Service) RemoveFavorite(ctx context.Context, clientID, userID, truckID string) error {
	truckID = strings.TrimSpace(truckID)
	if truckID == "" {
		return ErrInvalidTruck
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = ? AND truck_id = ?`, userID, truckID); err != nil {
		return errors.Wrap(err, "remove favorite")
	}
	s.refreshSnapshot(ctx, clientID, userID)
	return nil
}

// refreshSnapshot rewrites the client's currentUser when it belongs to userID.
func (s *Service) refreshSnapshot(ctx context.Context, clientID, userID string) {
	if clientID == "" {
		return
	}
	current, err := s.CurrentUser(ctx, clientID)
	if err != nil || current.ID != userID {
		return
	}
	trucks, err := s.ListFavorites(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("refresh favorites failed")
		return
	}
	current.SavedTrucks = trucks
	if err := s.saveSnapshot(ctx, clientID, current); err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("refresh current user failed")
	}
}
