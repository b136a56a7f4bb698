package main

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"sync"
	"time"
)

const (
	// Room PINs are 4-digit numeric strings, 1000-9999.
	pinFloor = 1000
	pinSpace = 9000

	// The PIN space is small, so allocation retries are bounded rather
	// than looping until a free value turns up.
	maxPinAttempts = 100
)

// RoomStore holds every live room keyed by PIN.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[string]*Room

	roomTimeout  time.Duration
	reapInterval time.Duration
}

func newRoomStore(cfg *Config) *RoomStore {
	s := &RoomStore{
		rooms:        make(map[string]*Room),
		roomTimeout:  cfg.roomTimeout,
		reapInterval: cfg.reapInterval,
	}
	if s.roomTimeout > 0 {
		go s.reaperLoop(cfg)
	}
	return s
}

func randomPin() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(pinSpace))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(pinFloor+n.Int64(), 10), nil
}

// create allocates a fresh PIN and registers a new room under it.
func (s *RoomStore) create() (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < maxPinAttempts; i++ {
		pin, err := randomPin()
		if err != nil {
			return nil, err
		}
		if _, exists := s.rooms[pin]; exists {
			continue
		}

		r := newRoom(pin)
		s.rooms[pin] = r
		return r, nil
	}

	return nil, errCapacityExhausted
}

func (s *RoomStore) get(pin string) (*Room, bool) {
	s.mu.Lock()
	r, ok := s.rooms[pin]
	s.mu.Unlock()
	return r, ok
}

func (s *RoomStore) remove(pin string) {
	s.mu.Lock()
	delete(s.rooms, pin)
	s.mu.Unlock()
}

func (s *RoomStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// snapshot returns the current set of rooms without holding the store
// lock during per-room work.
func (s *RoomStore) snapshot() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// sweep performs one reaper pass: every room idle past the timeout is
// notified, its subscribers are dropped, and only then is it deleted
// from the store. Returns the PINs of the expired rooms.
func (s *RoomStore) sweep(now time.Time) []string {
	cutoff := now.Add(-s.roomTimeout)

	var expired []string
	for _, r := range s.snapshot() {
		// Re-checked under the room lock, so a room touched after the
		// snapshot survives.
		if !r.expireBefore(cutoff) {
			continue
		}
		s.remove(r.pin)
		expired = append(expired, r.pin)
	}
	return expired
}

func (s *RoomStore) reaperLoop(cfg *Config) {
	ticker := time.NewTicker(s.reapInterval)
	for range ticker.C {
		for _, pin := range s.sweep(time.Now()) {
			logf(cfg, "ROOMS: Expired idle room %s", pin)
		}
	}
}
