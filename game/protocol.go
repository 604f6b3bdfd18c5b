package game

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

type Opcode int

const (
	OpDispatch     Opcode = 0
	OpIdentify     Opcode = 2
	OpHeartbeat    Opcode = 3
	OpHeartbeatAck Opcode = 4
)

// OpNotice shares its value with the client heartbeat. Server to client it
// carries an error or kick notice.
const OpNotice = OpHeartbeat

// Inbound dispatch events.
const (
	EventGameStart      = "GAME_START"
	EventUpdateSettings = "UPDATE_SETTINGS"
	EventPlayerSelect   = "PLAYER_SELECT"
	EventCzarSelect     = "CZAR_SELECT"
)

// Outbound events.
const (
	EventGameUpdate     = "GAME_UPDATE"
	EventRoundUpdate    = "ROUND_UPDATE"
	EventPlayerUpdate   = "PLAYER_UPDATE"
	EventPlayerAddition = "PLAYER_ADDITION"
	EventRoundEnd       = "ROUND_END"
	EventGameEnd        = "GAME_END"
)

// Command is one decoded client message. The set of implementations is
// closed: the room and the session switch over them exhaustively.
type Command interface {
	isCommand()
}

type IdentifyCommand struct {
	Token    string
	Password string
}

type HeartbeatCommand struct{}

type StartGameCommand struct{}

type UpdateSettingsCommand struct {
	Patch SettingsPatch
}

// CardPick names a card in the hand. Text fills in a blank card.
type CardPick struct {
	ID   string `json:"id"`
	Text string `json:"text,omitempty"`
}

type SubmitCardsCommand struct {
	Picks []CardPick
}

type JudgePickCommand struct {
	PlayerID int
}

func (IdentifyCommand) isCommand()       {}
func (HeartbeatCommand) isCommand()      {}
func (StartGameCommand) isCommand()      {}
func (UpdateSettingsCommand) isCommand() {}
func (SubmitCardsCommand) isCommand()    {}
func (JudgePickCommand) isCommand()      {}

type inboundEnvelope struct {
	Op    *int            `json:"o"`
	Event string          `json:"e"`
	Data  json.RawMessage `json:"d"`
}

type outboundEnvelope struct {
	Op    Opcode `json:"o"`
	Event string `json:"e,omitempty"`
	Data  any    `json:"d,omitempty"`
}

type notice struct {
	Message string `json:"m"`
	Reason  string `json:"t,omitempty"`
}

// DecodeCommand parses one client frame. Anything it cannot make sense of is
// reported as a protocol error, which callers drop.
func DecodeCommand(raw []byte) (Command, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Op == nil {
		return nil, ErrMalformedEnvelope
	}

	switch Opcode(*env.Op) {
	case OpHeartbeat, OpHeartbeatAck:
		return HeartbeatCommand{}, nil

	case OpIdentify:
		var payload struct {
			Token    string `json:"t"`
			Password string `json:"p"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil || payload.Token == "" {
			return nil, ErrMalformedPayload
		}
		return IdentifyCommand{Token: payload.Token, Password: payload.Password}, nil

	case OpDispatch:
		return decodeDispatch(env.Event, env.Data)
	}

	return nil, ErrUnknownOpcode
}

func decodeDispatch(event string, data json.RawMessage) (Command, error) {
	switch event {
	case EventGameStart:
		return StartGameCommand{}, nil

	case EventUpdateSettings:
		patch, err := DecodeSettingsPatch(data)
		if err != nil {
			return nil, err
		}
		return UpdateSettingsCommand{Patch: patch}, nil

	case EventPlayerSelect:
		picks, err := decodePicks(data)
		if err != nil {
			return nil, err
		}
		return SubmitCardsCommand{Picks: picks}, nil

	case EventCzarSelect:
		id, ok := decodeInt(data)
		if !ok {
			return nil, ErrMalformedPayload
		}
		return JudgePickCommand{PlayerID: id}, nil
	}

	return nil, ErrUnknownEvent
}

// decodePicks accepts a list whose items are either bare card ids or
// {id, text} objects.
func decodePicks(data json.RawMessage) ([]CardPick, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil || len(items) == 0 {
		return nil, ErrMalformedPayload
	}

	picks := make([]CardPick, 0, len(items))
	for _, item := range items {
		var id string
		if err := json.Unmarshal(item, &id); err == nil {
			picks = append(picks, CardPick{ID: id})
			continue
		}

		var pick CardPick
		if err := json.Unmarshal(item, &pick); err != nil || pick.ID == "" {
			return nil, ErrMalformedPayload
		}
		picks = append(picks, pick)
	}
	return picks, nil
}

// decodeInt accepts integral JSON numbers and numeric strings.
func decodeInt(data json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return 0, false
		}
		return int(f), true
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

func encodeEvent(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundEnvelope{Op: OpDispatch, Event: event, Data: payload})
}

func encodeNotice(err error) []byte {
	n := notice{Message: err.Error()}
	var gameErr *Error
	if errors.As(err, &gameErr) {
		n = notice{Message: gameErr.Message, Reason: gameErr.Code}
	}
	// notice only holds strings, Marshal cannot fail
	data, _ := json.Marshal(outboundEnvelope{Op: OpNotice, Data: n})
	return data
}

var heartbeatAck = []byte(`{"o":4}`)
