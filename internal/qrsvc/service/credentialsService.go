package service

import (
	"context"
	"fmt"

	"github.com/avvvet/gm2-qr-services/internal/qrsvc/models"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/store"
)

// CredentialsService reads and writes the credentials under their fixed keys.
type CredentialsService struct {
	store store.KVStore
}

func NewCredentialsService(s store.KVStore) *CredentialsService {
	return &CredentialsService{store: s}
}

// Stored returns whatever is in durable storage; missing keys stay empty.
func (s *CredentialsService) Stored(ctx context.Context) (models.Credentials, error) {
	var c models.Credentials
	fields := []struct {
		key string
		dst *string
	}{
		{store.KeyCardNumber, &c.CardNumber},
		{store.KeyDeviceId, &c.DeviceId},
		{store.KeyConstant, &c.Constant},
	}
	for _, f := range fields {
		v, _, err := s.store.Get(ctx, f.key)
		if err != nil {
			return models.Credentials{}, fmt.Errorf("load credentials: %w", err)
		}
		*f.dst = v
	}
	return c, nil
}

// Load prefers the non-empty fields of override (query parameters) and
// falls back to storage for the rest.
func (s *CredentialsService) Load(ctx context.Context, override models.Credentials) (models.Credentials, error) {
	stored, err := s.Stored(ctx)
	if err != nil {
		return models.Credentials{}, err
	}
	return override.Merge(stored), nil
}

// Save trims and validates c, then overwrites all three keys.
func (s *CredentialsService) Save(ctx context.Context, c models.Credentials) (models.Credentials, error) {
	c = c.Trim()
	if err := c.Validate(); err != nil {
		return models.Credentials{}, err
	}

	if err := s.store.Set(ctx, store.KeyCardNumber, c.CardNumber); err != nil {
		return models.Credentials{}, fmt.Errorf("save credentials: %w", err)
	}
	if err := s.store.Set(ctx, store.KeyDeviceId, c.DeviceId); err != nil {
		return models.Credentials{}, fmt.Errorf("save credentials: %w", err)
	}
	if err := s.store.Set(ctx, store.KeyConstant, c.Constant); err != nil {
		return models.Credentials{}, fmt.Errorf("save credentials: %w", err)
	}
	return c, nil
}
