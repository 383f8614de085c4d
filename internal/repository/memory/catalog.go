package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
)

type roomEntry struct {
	room  domain.Room
	seats []domain.Seat
}

type sessionEntry struct {
	session domain.Session
	ledger  *sessionLedger
}

type CatalogRepo struct {
	s *Store
}

func (r *CatalogRepo) CreateRoom(ctx context.Context, room domain.Room) (*domain.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, e := range r.s.rooms {
		if e.room.Name == room.Name {
			return nil, fmt.Errorf("memory.CatalogRepo.CreateRoom:%w", repository.ErrConflict)
		}
	}

	r.s.nextRoomID++
	room.ID = r.s.nextRoomID
	room.TotalSeats = room.Rows * room.SeatsPerRow

	seats := make([]domain.Seat, 0, room.TotalSeats)
	for row := 1; row <= room.Rows; row++ {
		for num := 1; num <= room.SeatsPerRow; num++ {
			r.s.nextSeatID++
			seats = append(seats, domain.Seat{
				ID:     r.s.nextSeatID,
				RoomID: room.ID,
				Row:    row,
				Number: num,
				Label:  domain.SeatLabel(row, num),
			})
		}
	}

	r.s.rooms[room.ID] = &roomEntry{room: room, seats: seats}

	out := room
	return &out, nil
}

func (r *CatalogRepo) GetRoom(ctx context.Context, id int64) (*domain.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.rooms[id]
	if !ok {
		return nil, fmt.Errorf("memory.CatalogRepo.GetRoom:%w", repository.ErrNotFound)
	}

	out := e.room
	return &out, nil
}

func (r *CatalogRepo) SeatsForRoom(ctx context.Context, roomID int64) ([]domain.Seat, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("memory.CatalogRepo.SeatsForRoom:%w", repository.ErrNotFound)
	}

	return append([]domain.Seat(nil), e.seats...), nil
}

func (r *CatalogRepo) CreateSession(ctx context.Context, s domain.Session) (*domain.Session, error) {
	const op = "memory.CatalogRepo.CreateSession"

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.rooms[s.RoomID]; !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	for _, e := range r.s.sessions {
		if e.session.RoomID == s.RoomID && e.session.Overlaps(s) {
			return nil, fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}

	r.s.nextSessionID++
	s.ID = r.s.nextSessionID

	r.s.sessions[s.ID] = &sessionEntry{
		session: s,
		ledger: &sessionLedger{
			claims:        make(map[int64]uuid.UUID),
			reservations:  make(map[uuid.UUID]*domain.Reservation),
			transactions:  make(map[uuid.UUID]*domain.Transaction),
			byReservation: make(map[uuid.UUID]uuid.UUID),
		},
	}

	out := s
	return &out, nil
}

func (r *CatalogRepo) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	e, ok := r.s.session(id)
	if !ok {
		return nil, fmt.Errorf("memory.CatalogRepo.GetSession:%w", repository.ErrNotFound)
	}

	out := e.session
	return &out, nil
}

func (r *CatalogRepo) ListSessions(ctx context.Context, filmID int64) ([]domain.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []domain.Session{}
	for _, e := range r.s.sessions {
		if filmID == 0 || e.session.FilmID == filmID {
			out = append(out, e.session)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})

	return out, nil
}
