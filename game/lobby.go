package game

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Lobby is the registry of live rooms. Rooms register themselves through
// UpdateDescription and leave through RemoveRoom.
type Lobby struct {
	rooms        map[string]*Room
	descriptions map[string]RoomDescription
	idGen        *IdGen
	deps         RoomDeps
	closed       bool
	locker       sync.RWMutex

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewLobby builds a registry. deps is the template every room is built from;
// its Registry and Rand are filled per room.
func NewLobby(idGen *IdGen, deps RoomDeps) *Lobby {
	ctx, cancel := context.WithCancel(context.Background())
	return &Lobby{
		rooms:        make(map[string]*Room),
		descriptions: make(map[string]RoomDescription),
		idGen:        idGen,
		deps:         deps,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (l *Lobby) CreateRoom(hostUserID string, settings Settings) (*Room, error) {
	l.locker.Lock()
	defer l.locker.Unlock()

	if l.closed {
		return nil, ErrLobbyClosed
	}

	deps := l.deps
	deps.Registry = l
	deps.Rand = nil
	room := NewRoom(l.idGen.Generate(), hostUserID, settings, deps)

	l.rooms[room.ID()] = room
	l.descriptions[room.ID()] = room.Description()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		room.Run(l.ctx)
	}()

	log.Info().Str("room", room.ID()).Str("host", hostUserID).Msg("room created")
	return room, nil
}

func (l *Lobby) GetRoom(id string) (*Room, bool) {
	l.locker.RLock()
	defer l.locker.RUnlock()
	room, ok := l.rooms[id]
	return room, ok
}

func (l *Lobby) RemoveRoom(id string) {
	l.locker.Lock()
	room, ok := l.rooms[id]
	delete(l.rooms, id)
	delete(l.descriptions, id)
	l.locker.Unlock()

	if ok {
		l.idGen.Dispose(room.NumericID())
	}
}

func (l *Lobby) UpdateDescription(desc RoomDescription) {
	l.locker.Lock()
	defer l.locker.Unlock()
	if _, ok := l.rooms[desc.ID]; ok {
		l.descriptions[desc.ID] = desc
	}
}

// Discovery lists open rooms, newest first.
func (l *Lobby) Discovery() []RoomDescription {
	l.locker.RLock()
	out := make([]RoomDescription, 0, len(l.descriptions))
	for _, desc := range l.descriptions {
		out = append(out, desc)
	}
	l.locker.RUnlock()

	slices.SortFunc(out, func(a, b RoomDescription) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (l *Lobby) Len() int {
	l.locker.RLock()
	defer l.locker.RUnlock()
	return len(l.rooms)
}

// Shutdown stops room creation and tells every running room to close, which
// persists games in progress. It waits for the rooms to finish or for ctx to
// expire, whichever comes first.
func (l *Lobby) Shutdown(ctx context.Context) error {
	l.locker.Lock()
	l.closed = true
	l.locker.Unlock()
	l.cancel()

	finished := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		log.Warn().Int("rooms", l.Len()).Msg("shutdown deadline reached before all rooms closed")
		return ctx.Err()
	}
}
