package session

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/tradegate/internal/common"
)

type MemoryStore struct {
	mu sync.RWMutex
	s  *AuthorizedSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(_ context.Context, s AuthorizedSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = &s
	return nil
}

func (m *MemoryStore) Get(_ context.Context) (AuthorizedSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.s == nil {
		return AuthorizedSession{}, common.ErrNoSession
	}
	return *m.s, nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}

func (m *MemoryStore) IsAuthenticated(ctx context.Context) (bool, error) {
	return isAuthenticated(ctx, m)
}

func isAuthenticated(ctx context.Context, st Store) (bool, error) {
	s, err := st.Get(ctx)
	if errors.Is(err, common.ErrNoSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.AuthToken != "", nil
}
