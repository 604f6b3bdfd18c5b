package cards

import (
	"math/rand/v2"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Deck struct {
	Name        string
	ID          string
	ShortCode   string
	Prompts     []Card
	Responses   []Card
	BlankWeight int
}

func NewDeck(id, name string, prompts, responses []string, blankWeight int) *Deck {
	d := &Deck{
		Name:        name,
		ID:          id,
		ShortCode:   shortCode(id),
		Prompts:     make([]Card, 0, len(prompts)),
		Responses:   make([]Card, 0, len(responses)),
		BlankWeight: max(blankWeight, 0),
	}
	for _, text := range prompts {
		d.Prompts = append(d.Prompts, NewPrompt(text, id))
	}
	for _, text := range responses {
		if text = strings.TrimSpace(text); text != "" {
			d.Responses = append(d.Responses, NewResponse(text, id))
		}
	}
	return d
}

func shortCode(id string) string {
	var code []rune
	for _, word := range strings.FieldsFunc(id, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
		first, _ := utf8.DecodeRuneInString(word)
		code = append(code, unicode.ToUpper(first))
		if len(code) == 4 {
			break
		}
	}
	return string(code)
}

// DrawPrompt picks a prompt whose text is not excluded. When every prompt is
// excluded any prompt is returned; ok is false only for a deck without prompts.
func (d *Deck) DrawPrompt(rng *rand.Rand, exclude map[string]struct{}) (Card, bool) {
	if len(d.Prompts) == 0 {
		return Card{}, false
	}

	candidates := make([]int, 0, len(d.Prompts))
	for i, prompt := range d.Prompts {
		if _, skip := exclude[prompt.Text]; !skip {
			candidates = append(candidates, i)
		}
	}

	if len(candidates) == 0 {
		return d.Prompts[rng.IntN(len(d.Prompts))], true
	}
	return d.Prompts[candidates[rng.IntN(len(candidates))]], true
}

// DrawResponse returns a response whose text is not excluded. With allowBlank
// a blank card comes out with probability BlankWeight/(BlankWeight+remaining),
// remaining being the number of responses still drawable.
func (d *Deck) DrawResponse(rng *rand.Rand, exclude map[string]struct{}, allowBlank bool) (Card, bool) {
	remaining := 0
	for _, response := range d.Responses {
		if _, skip := exclude[response.Text]; !skip {
			remaining++
		}
	}

	if allowBlank && d.BlankWeight > 0 && rng.IntN(d.BlankWeight+remaining) < d.BlankWeight {
		return NewBlank(d.ID), true
	}

	if remaining == 0 {
		return Card{}, false
	}

	for _, i := range rng.Perm(len(d.Responses)) {
		if _, skip := exclude[d.Responses[i].Text]; !skip {
			return d.Responses[i], true
		}
	}
	return Card{}, false
}
