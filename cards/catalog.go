package cards

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var (
	ErrEmptyPack     = errors.New("empty-pack")
	ErrDuplicatePack = errors.New("duplicate-pack")
)

// packFile is the on-disk format of a card pack.
type packFile struct {
	Name  string   `json:"name"`
	ID    string   `json:"id"`
	White []string `json:"white"`
	Black []string `json:"black"`
	Empty int      `json:"empty"`
}

// Catalog holds the decks known to the process. It is never mutated after
// construction, so lookups need no locking.
type Catalog struct {
	decks map[string]*Deck
	ids   []string
}

func NewCatalog(decks ...*Deck) (*Catalog, error) {
	c := &Catalog{decks: make(map[string]*Deck, len(decks))}
	for _, d := range decks {
		if _, exists := c.decks[d.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePack, d.ID)
		}
		c.decks[d.ID] = d
		c.ids = append(c.ids, d.ID)
	}
	slices.Sort(c.ids)
	return c, nil
}

// LoadCatalog reads every *.json pack in dir.
func LoadCatalog(dir string) (*Catalog, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}

	decks := make([]*Deck, 0, len(paths))
	for _, path := range paths {
		deck, err := loadPack(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		decks = append(decks, deck)
	}
	return NewCatalog(decks...)
}

func loadPack(path string) (*Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pack packFile
	if err := json.Unmarshal(data, &pack); err != nil {
		return nil, err
	}

	if pack.ID == "" {
		pack.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if pack.Name == "" {
		pack.Name = pack.ID
	}
	if len(pack.White)+len(pack.Black)+pack.Empty == 0 {
		return nil, ErrEmptyPack
	}

	return NewDeck(pack.ID, pack.Name, pack.Black, pack.White, pack.Empty), nil
}

func (c *Catalog) Deck(id string) (*Deck, bool) {
	d, ok := c.decks[id]
	return d, ok
}

// IDs returns the known deck ids in lexical order.
func (c *Catalog) IDs() []string {
	return slices.Clone(c.ids)
}

func (c *Catalog) Len() int {
	return len(c.ids)
}
