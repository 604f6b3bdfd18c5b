package cards

import (
	"errors"
	"strings"
)

var ErrUnknownKind = errors.New("unknown-card-kind")

type Kind int

const (
	Prompt Kind = iota
	Response
	Blank
)

func (k Kind) String() string {
	switch k {
	case Prompt:
		return "prompt"
	case Response:
		return "response"
	case Blank:
		return "blank"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for _, candidate := range []Kind{Prompt, Response, Blank} {
		if candidate.String() == string(text) {
			*k = candidate
			return nil
		}
	}
	return ErrUnknownKind
}

// BlankMarker is the slot a response card fills in a prompt.
const BlankMarker = "_"

// Card is a value. ID is empty until the card is dealt into a hand, and a new
// one is issued on every deal.
type Card struct {
	Text   string `json:"text"`
	Kind   Kind   `json:"kind"`
	DeckID string `json:"deck,omitempty"`
	ID     string `json:"id,omitempty"`
}

func NewPrompt(text, deckID string) Card {
	return Card{Text: NormalizePrompt(text), Kind: Prompt, DeckID: deckID}
}

func NewResponse(text, deckID string) Card {
	return Card{Text: strings.TrimSpace(text), Kind: Response, DeckID: deckID}
}

func NewBlank(deckID string) Card {
	return Card{Kind: Blank, DeckID: deckID}
}

// NormalizePrompt collapses runs of markers into one and makes sure the prompt
// has at least one slot.
func NormalizePrompt(text string) string {
	text = strings.TrimSpace(text)
	for strings.Contains(text, BlankMarker+BlankMarker) {
		text = strings.ReplaceAll(text, BlankMarker+BlankMarker, BlankMarker)
	}
	if !strings.Contains(text, BlankMarker) {
		if text == "" {
			return BlankMarker
		}
		text += " " + BlankMarker
	}
	return text
}

// Blanks is the number of response cards a submission to this prompt needs.
func (c Card) Blanks() int {
	if n := strings.Count(c.Text, BlankMarker); n > 0 {
		return n
	}
	return 1
}

func (c Card) IsBlank() bool {
	return c.Kind == Blank
}

func (c Card) WithID(id string) Card {
	c.ID = id
	return c
}
