package game

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	sessionBufferSize = 256
	identifyTimeout   = 5 * time.Second
)

// Session is one websocket client. The read pump decodes commands and the
// write pump delivers outgoing frames and watches the heartbeat. Both stop
// together when the session context is cancelled.
type Session struct {
	socket    WebsocketConnection
	roomID    string
	rooms     RoomFinder
	verifier  IdentityVerifier
	heartbeat time.Duration
	limiter   *rate.Limiter

	outbox chan []byte
	beats  chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	reason    string

	log    zerolog.Logger
	room   *Room
	player *Player
}

func NewSession(socket WebsocketConnection, roomID string, rooms RoomFinder, verifier IdentityVerifier, heartbeat time.Duration) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		socket:    socket,
		roomID:    roomID,
		rooms:     rooms,
		verifier:  verifier,
		heartbeat: heartbeat,
		limiter:   rate.NewLimiter(5, 10),
		outbox:    make(chan []byte, sessionBufferSize),
		beats:     make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		log:       log.With().Str("room", roomID).Logger(),
	}
}

// Send queues data for the write pump without blocking.
func (s *Session) Send(data []byte) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	select {
	case s.outbox <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close ends the session. The first reason given wins.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		s.reason = reason
		s.cancel()
	})
}

// Run blocks until the connection is gone, then detaches from the room.
func (s *Session) Run() {
	var wg sync.WaitGroup
	logger := s.log
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writePump(logger)
	}()

	s.readPump()
	s.Close("")
	wg.Wait()

	if s.room != nil {
		s.room.Detach(s.player, s)
	}
	s.log.Debug().Msg("session ended")
}

func (s *Session) readPump() {
	for {
		data, err := s.socket.Read()
		if err != nil {
			return
		}

		cmd, err := DecodeCommand(data)
		if err != nil {
			s.log.Debug().Err(err).Msg("ignoring client message")
			continue
		}

		s.handle(cmd)
		if s.ctx.Err() != nil {
			return
		}
	}
}

func (s *Session) handle(cmd Command) {
	switch c := cmd.(type) {
	case HeartbeatCommand:
		select {
		case s.beats <- struct{}{}:
		default:
		}
		s.Send(heartbeatAck)

	case IdentifyCommand:
		s.identify(c)

	case StartGameCommand, UpdateSettingsCommand, SubmitCardsCommand, JudgePickCommand:
		if s.room == nil || !s.limiter.Allow() {
			return
		}
		if err := s.room.Send(s.ctx, s.player, s, cmd); err != nil {
			s.log.Debug().Err(err).Msg("room rejected command")
		}
	}
}

func (s *Session) identify(cmd IdentifyCommand) {
	if s.player != nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, identifyTimeout)
	defer cancel()

	identity, err := s.verifier.VerifyIdentity(ctx, cmd.Token)
	if err != nil {
		s.log.Debug().Err(err).Msg("identify failed")
		s.Send(encodeNotice(ErrInvalidToken))
		return
	}

	room, ok := s.rooms.GetRoom(s.roomID)
	if !ok {
		s.Send(encodeNotice(ErrRoomNotFound))
		s.Close(ErrRoomNotFound.Code)
		return
	}

	player, err := room.Attach(ctx, s, identity, cmd.Password)
	if err != nil {
		s.Send(encodeNotice(err))
		if reason, ok := closeReason(err); ok {
			s.Close(reason)
		}
		return
	}

	s.room = room
	s.player = player
	s.log = s.log.With().Str("user", identity.Id).Int("player", player.ID).Logger()
	s.log.Debug().Msg("session attached")
}

func (s *Session) writePump(logger zerolog.Logger) {
	liveness := time.NewTimer(s.heartbeat + s.heartbeat/2)
	defer liveness.Stop()
	pinger := time.NewTicker(s.heartbeat)
	defer pinger.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.drain()
			s.socket.Close(s.reason)
			return

		case data := <-s.outbox:
			if err := s.socket.Write(data); err != nil {
				s.Close("")
			}

		case <-s.beats:
			liveness.Reset(s.heartbeat + s.heartbeat/2)

		case <-pinger.C:
			if err := s.socket.Ping(); err != nil {
				s.Close("")
			}

		case <-liveness.C:
			logger.Info().Msg("heartbeat timeout")
			s.Close(ErrHeartbeatTimeout.Code)
		}
	}
}

// drain writes whatever was queued before the session closed so final
// notices reach the client.
func (s *Session) drain() {
	for {
		select {
		case data := <-s.outbox:
			if err := s.socket.Write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}
