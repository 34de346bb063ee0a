package account

import (
	"context"

	"github.com/pkg/errors"

	"chathistory/internal/clientstore"
	"chathistory/internal/models"
)

var ErrInvalidTheme = errors.New("theme must be light or dark")

// Theme returns the stored theme of clientID, light when unset or unknown.
func (s *Service) Theme(ctx context.Context, clientID string) (models.Theme, error) {
	raw, err := s.store.Get(ctx, clientID, models.ThemeKey)
	if err != nil {
		if errors.Is(err, clientstore.ErrNotFound) {
			return models.ThemeLight, nil
		}
		return "", errors.Wrap(err, "load theme")
	}
	theme := models.Theme(raw)
	if !theme.Valid() {
		return models.ThemeLight, nil
	}
	return theme, nil
}

func (s *Service) SetTheme(ctx context.Context, clientID string, theme models.Theme) error {
	if !theme.Valid() {
		return ErrInvalidTheme
	}
	return errors.Wrap(s.store.Set(ctx, clientID, models.ThemeKey, string(theme)), "save theme")
}

// ToggleTheme flips between light and dark and returns the new theme.
func (s *Service) ToggleTheme(ctx context.Context, clientID string) (models.Theme, error) {
	current, err := s.Theme(ctx, clientID)
	if err != nil {
		return "", err
	}
	next := current.Toggle()
	if err := s.SetTheme(ctx, clientID, next); err != nil {
		return "", err
	}
	return next, nil
}
