package game

import (
	"context"
	"haters/cards"
	"haters/domain"
	"time"
)

// Connection is the room's handle on a player's session. Send must not block.
type Connection interface {
	Send(data []byte) error
	Close(reason string)
}

type WebsocketConnection interface {
	Close(reason string)
	Write(data []byte) error
	Read() ([]byte, error)
	Ping() error
}

type TickerCreator interface {
	Create(d time.Duration) (<-chan time.Time, func())
}

type DeckCatalog interface {
	Deck(id string) (*cards.Deck, bool)
}

// GameRecorder persists finished games. Guests are never recorded.
type GameRecorder interface {
	SaveRoom(ctx context.Context, roomID string, startedAt time.Time, record []byte) error
	RecordResult(ctx context.Context, userID string, points int, won bool, roomID string) error
}

type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, token string) (domain.Identity, error)
}

type RoomRegistry interface {
	UpdateDescription(desc RoomDescription)
	RemoveRoom(id string)
}

type RoomFinder interface {
	GetRoom(id string) (*Room, bool)
}
