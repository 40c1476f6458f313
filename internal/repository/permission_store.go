package repository

import (
	"context"
	"errors"
	"fmt"

	"MT5Hub/pkg/cache"
)

const permissionPrefix = "permission"

// PermissionStore keeps trading permissions in a cache.Service as "1" or "0".
// Backed by Redis it survives restarts; backed by MemoryCache it lives as long as the process.
type PermissionStore struct {
	c cache.Service
}

func NewPermissionStore(c cache.Service) *PermissionStore {
	return &PermissionStore{c: c}
}

func (s *PermissionStore) Get(ctx context.Context, botID int) (bool, bool, error) {
	var v string
	if err := s.c.Get(ctx, cache.GenerateKey(permissionPrefix, botID), &v); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("get permission %d: %w", botID, err)
	}
	return v == "1", true, nil
}

func (s *PermissionStore) Set(ctx context.Context, botID int, allowed bool) error {
	v := "0"
	if allowed {
		v = "1"
	}
	if err := s.c.Set(ctx, cache.GenerateKey(permissionPrefix, botID), v, 0); err != nil {
		return fmt.Errorf("set permission %d: %w", botID, err)
	}
	return nil
}

func (s *PermissionStore) Clear(ctx context.Context, botID int) error {
	if err := s.c.Delete(ctx, cache.GenerateKey(permissionPrefix, botID)); err != nil {
		return fmt.Errorf("clear permission %d: %w", botID, err)
	}
	return nil
}

func (s *PermissionStore) Close() error {
	return s.c.Close()
}
