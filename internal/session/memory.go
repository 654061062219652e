package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

// MemoryStore 进程内会话存储，用于测试与单机部署。
// 每个会话一把锁，Apply 对同一会话串行化，不同会话互不阻塞。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry
	logger   zerolog.Logger
}

type memoryEntry struct {
	mu      sync.Mutex
	session *types.Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存会话存储
func NewMemoryStore(logger zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memoryEntry),
		logger:   logger.With().Str("component", "session_memory_store").Logger(),
	}
}

// Create 实现 Store 接口
func (m *MemoryStore) Create(_ context.Context, s *types.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("session: 会话或会话ID为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("session: 会话 %s 已存在", s.ID)
	}
	m.sessions[s.ID] = &memoryEntry{session: s.Clone()}
	m.logger.Debug().Str("session_id", s.ID).Msg("会话已创建")
	return nil
}

// Get 实现 Store 接口，返回快照副本
func (m *MemoryStore) Get(_ context.Context, id string) (*types.Session, error) {
	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.session.Clone(), nil
}

// Apply 实现 Store 接口。先对快照副本演算整批变更，
// 任一变更失败则丢弃副本，存储内状态保持不变。
func (m *MemoryStore) Apply(_ context.Context, id string, expectedVersion int64, mutations ...Mutation) (*types.Session, error) {
	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if expectedVersion != VersionAny && entry.session.Version != expectedVersion {
		return nil, fmt.Errorf("%w: 期望 %d, 实际 %d", ErrVersionConflict, expectedVersion, entry.session.Version)
	}

	draft := entry.session.Clone()
	for _, mutate := range mutations {
		if err := mutate(draft); err != nil {
			return nil, err
		}
	}
	draft.Version++
	draft.UpdatedAt = time.Now()
	entry.session = draft

	return draft.Clone(), nil
}

// Close 实现 Store 接口
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*memoryEntry)
	return nil
}
