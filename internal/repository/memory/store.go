// Package memory is an in-process implementation of the repository interfaces.
// It backs the memory storage driver and the service tests.
package memory

import (
	"sync"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/repository"
)

type Store struct {
	mu sync.RWMutex

	rooms    map[int64]*roomEntry
	sessions map[int64]*sessionEntry

	// reservation and transaction ids to the session that owns them
	reservationIdx map[uuid.UUID]int64
	transactionIdx map[uuid.UUID]int64

	nextRoomID    int64
	nextSeatID    int64
	nextSessionID int64
}

func New() *Store {
	return &Store{
		rooms:          make(map[int64]*roomEntry),
		sessions:       make(map[int64]*sessionEntry),
		reservationIdx: make(map[uuid.UUID]int64),
		transactionIdx: make(map[uuid.UUID]int64),
	}
}

func (s *Store) Catalog() repository.Catalog { return &CatalogRepo{s: s} }
func (s *Store) Ledger() repository.Ledger   { return &LedgerRepo{s: s} }

func (s *Store) session(id int64) (*sessionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	return e, ok
}
