package game

import (
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type DeckLister interface {
	DeckCatalog
	IDs() []string
}

type GameHandler struct {
	lobby     *Lobby
	decks     DeckLister
	verifier  IdentityVerifier
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

func NewGameHandler(lobby *Lobby, decks DeckLister, verifier IdentityVerifier, heartbeat time.Duration, allowedOrigins []string) *GameHandler {
	return &GameHandler{
		lobby:     lobby,
		decks:     decks,
		verifier:  verifier,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// CreateGameHandler opens a new room owned by the authenticated user. The
// optional body uses the UPDATE_SETTINGS shape.
func (h *GameHandler) CreateGameHandler(ctx *gin.Context) {
	id := ctx.GetString("id")
	if id == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxMessageSize))
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad-request-format"})
		return
	}

	patch, err := DecodeSettingsPatch(body)
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid-configs"})
		return
	}

	settings := DefaultSettings()
	settings.Apply(patch, func(id string) bool {
		_, ok := h.decks.Deck(id)
		return ok
	})

	room, err := h.lobby.CreateRoom(id, settings)
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": ErrLobbyClosed.Code})
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"id": room.ID()})
}

func (h *GameHandler) DiscoveryHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.lobby.Discovery())
}

func (h *GameHandler) DecksHandler(ctx *gin.Context) {
	ids := h.decks.IDs()
	views := make([]DeckView, 0, len(ids))
	for _, id := range ids {
		d, ok := h.decks.Deck(id)
		if !ok {
			continue
		}
		views = append(views, DeckView{
			ID:        d.ID,
			Name:      d.Name,
			ShortCode: d.ShortCode,
			Prompts:   len(d.Prompts),
			Responses: len(d.Responses),
		})
	}
	ctx.JSON(http.StatusOK, views)
}

// JoinGameHandler upgrades to a websocket. The client authenticates with the
// identify opcode once connected.
func (h *GameHandler) JoinGameHandler(ctx *gin.Context) {
	roomID := ctx.Param("roomid")
	if _, ok := h.lobby.GetRoom(roomID); !ok {
		ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": ErrRoomNotFound.Code})
		return
	}

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("ip", ctx.ClientIP()).Msg("JoinGame: websocket upgrade failed")
		return
	}

	session := NewSession(NewWebsocketConnection(conn), roomID, h.lobby, h.verifier, h.heartbeat)
	session.Run()
}
