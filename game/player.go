package game

import (
	"haters/cards"
	"haters/domain"
	"math/rand/v2"
	"slices"
	"strings"
)

// HandSize is the number of response cards a player holds after every deal.
const HandSize = 10

// Player is owned by its room and only touched from the room goroutine.
// It outlives its connection: a player who drops keeps score and hand and
// is rebound on the next identify with the same user id.
type Player struct {
	UserID      string
	Name        string
	DisplayName string
	ID          int

	IsJudge     bool
	IsHost      bool
	IsGuest     bool
	IsSpectator bool
	Active      bool

	Score      int
	Hand       []cards.Card
	Submission []cards.Card

	conn Connection
}

func newPlayer(id int, identity domain.Identity, conn Connection) *Player {
	return &Player{
		UserID:      identity.Id,
		Name:        identity.Name,
		DisplayName: identity.Name,
		ID:          id,
		IsGuest:     identity.IsGuest,
		Active:      true,
		conn:        conn,
	}
}

// fillHand tops the hand up to target. Texts in forbidden or already held
// are never dealt, and every accepted text is added to forbidden so one deal
// never hands the same wording to two players.
func (p *Player) fillHand(target int, forbidden map[string]struct{}, decks []*cards.Deck, rng *rand.Rand, newID func() string) {
	if len(p.Hand) > target {
		p.Hand = p.Hand[:target]
	}

	exclude := make(map[string]struct{}, len(forbidden)+len(p.Hand))
	for text := range forbidden {
		exclude[text] = struct{}{}
	}
	for _, card := range p.Hand {
		if !card.IsBlank() {
			exclude[card.Text] = struct{}{}
		}
	}

	for len(p.Hand) < target {
		drawn := false
		for _, i := range rng.Perm(len(decks)) {
			card, ok := decks[i].DrawResponse(rng, exclude, true)
			if !ok {
				continue
			}
			p.Hand = append(p.Hand, card.WithID(newID()))
			if !card.IsBlank() {
				exclude[card.Text] = struct{}{}
				forbidden[card.Text] = struct{}{}
			}
			drawn = true
			break
		}
		if !drawn {
			return
		}
	}
}

// takeCards removes the picked cards from the hand and returns them in pick
// order. Blank cards come back carrying the text of the pick. Nothing is
// removed unless every pick is valid.
func (p *Player) takeCards(picks []CardPick) ([]cards.Card, error) {
	taken := make([]cards.Card, 0, len(picks))
	seen := make(map[string]struct{}, len(picks))

	for _, pick := range picks {
		if _, dup := seen[pick.ID]; dup {
			return nil, ErrCardNotInHand
		}
		seen[pick.ID] = struct{}{}

		i := slices.IndexFunc(p.Hand, func(c cards.Card) bool { return c.ID == pick.ID })
		if i < 0 {
			return nil, ErrCardNotInHand
		}

		card := p.Hand[i]
		if card.IsBlank() {
			text := strings.TrimSpace(pick.Text)
			if text == "" {
				return nil, ErrBlankCardText
			}
			card.Text = text
		}
		taken = append(taken, card)
	}

	p.Hand = slices.DeleteFunc(p.Hand, func(c cards.Card) bool {
		_, ok := seen[c.ID]
		return ok
	})
	return taken, nil
}

type PlayerView struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Score       int    `json:"score"`
	IsJudge     bool   `json:"is_judge"`
	IsHost      bool   `json:"is_host"`
	IsGuest     bool   `json:"is_guest"`
	IsSpectator bool   `json:"is_spectator"`
	Active      bool   `json:"active"`
}

type PrivatePlayerView struct {
	PlayerView
	Hand       []cards.Card `json:"hand"`
	Submission []cards.Card `json:"submission,omitempty"`
}

func (p *Player) view() PlayerView {
	return PlayerView{
		ID:          p.ID,
		Name:        p.DisplayName,
		Score:       p.Score,
		IsJudge:     p.IsJudge,
		IsHost:      p.IsHost,
		IsGuest:     p.IsGuest,
		IsSpectator: p.IsSpectator,
		Active:      p.Active,
	}
}

func (p *Player) privateView() PrivatePlayerView {
	hand := slices.Clone(p.Hand)
	if hand == nil {
		hand = []cards.Card{}
	}
	return PrivatePlayerView{
		PlayerView: p.view(),
		Hand:       hand,
		Submission: slices.Clone(p.Submission),
	}
}
