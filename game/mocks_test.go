package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"haters/cards"
	"haters/domain"
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Connection ---

type frame struct {
	Op    int             `json:"o"`
	Event string          `json:"e"`
	Data  json.RawMessage `json:"d"`
}

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	reason string
	fail   error
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.reason = reason
}

func (c *fakeConn) isClosed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.reason
}

func (c *fakeConn) decoded() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]frame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f frame
		if err := json.Unmarshal(raw, &f); err == nil {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) events() []string {
	var names []string
	for _, f := range c.decoded() {
		if f.Op == int(OpNotice) {
			names = append(names, "notice")
			continue
		}
		names = append(names, f.Event)
	}
	return names
}

// last returns the payload of the most recent event with that name.
func (c *fakeConn) last(t *testing.T, event string, into any) {
	t.Helper()
	frames := c.decoded()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Op == int(OpDispatch) && frames[i].Event == event {
			require.NoError(t, json.Unmarshal(frames[i].Data, into))
			return
		}
	}
	t.Fatalf("no %s event received", event)
}

func (c *fakeConn) notices() []notice {
	var out []notice
	for _, f := range c.decoded() {
		if f.Op != int(OpNotice) {
			continue
		}
		var n notice
		if json.Unmarshal(f.Data, &n) == nil {
			out = append(out, n)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

type panickyConn struct{}

func (panickyConn) Send([]byte) error { panic("boom") }
func (panickyConn) Close(string)      {}

// --- WebsocketConnection ---

type fakeSocket struct {
	incoming chan []byte
	written  chan []byte
	pings    chan struct{}
	closed   chan string
	once     sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		incoming: make(chan []byte, 16),
		written:  make(chan []byte, 256),
		pings:    make(chan struct{}, 16),
		closed:   make(chan string, 1),
	}
}

func (s *fakeSocket) Read() ([]byte, error) {
	select {
	case data := <-s.incoming:
		return data, nil
	case reason := <-s.closed:
		s.closed <- reason
		return nil, errors.New("socket closed")
	}
}

func (s *fakeSocket) Write(data []byte) error {
	s.written <- data
	return nil
}

func (s *fakeSocket) Ping() error {
	select {
	case s.pings <- struct{}{}:
	default:
	}
	return nil
}

func (s *fakeSocket) Close(reason string) {
	s.once.Do(func() { s.closed <- reason })
}

// next waits for the next written frame.
func (s *fakeSocket) next(t *testing.T) frame {
	t.Helper()
	select {
	case data := <-s.written:
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
	}
	return frame{}
}

// nextEvent skips frames until one with the given event arrives.
func (s *fakeSocket) nextEvent(t *testing.T, event string) frame {
	t.Helper()
	for {
		f := s.next(t)
		if f.Event == event {
			return f
		}
	}
}

// --- IdentityVerifier ---

type MockIdentityVerifier struct {
	mock.Mock
}

func (m *MockIdentityVerifier) VerifyIdentity(ctx context.Context, token string) (domain.Identity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domain.Identity), args.Error(1)
}

// --- GameRecorder ---

type MockGameRecorder struct {
	mock.Mock
}

func (m *MockGameRecorder) SaveRoom(ctx context.Context, roomID string, startedAt time.Time, record []byte) error {
	args := m.Called(ctx, roomID, startedAt, record)
	return args.Error(0)
}

func (m *MockGameRecorder) RecordResult(ctx context.Context, userID string, points int, won bool, roomID string) error {
	args := m.Called(ctx, userID, points, won, roomID)
	return args.Error(0)
}

// --- RoomRegistry ---

type fakeRegistry struct {
	mu      sync.Mutex
	removed []string
	latest  RoomDescription
}

func (f *fakeRegistry) UpdateDescription(desc RoomDescription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = desc
}

func (f *fakeRegistry) RemoveRoom(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
}

func (f *fakeRegistry) removedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

// --- TickerCreator ---

type fakeTickers struct {
	ch      chan time.Time
	stopped chan struct{}
}

func newFakeTickers() *fakeTickers {
	return &fakeTickers{ch: make(chan time.Time), stopped: make(chan struct{}, 1)}
}

func (f *fakeTickers) Create(time.Duration) (<-chan time.Time, func()) {
	return f.ch, func() { f.stopped <- struct{}{} }
}

// --- fixtures ---

var epoch = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

func makeDeck(id string, prompts, responses, blankWeight int) *cards.Deck {
	p := make([]string, prompts)
	for i := range p {
		p[i] = fmt.Sprintf("%s prompt %d _", id, i)
	}
	r := make([]string, responses)
	for i := range r {
		r[i] = fmt.Sprintf("%s response %d", id, i)
	}
	return cards.NewDeck(id, id, p, r, blankWeight)
}

func makeCatalog(t *testing.T, decks ...*cards.Deck) *cards.Catalog {
	t.Helper()
	catalog, err := cards.NewCatalog(decks...)
	require.NoError(t, err)
	return catalog
}

func cardIDs() func() string {
	n := 0
	return func() string {
		n++
		return "card-" + strconv.Itoa(n)
	}
}

type roomFixture struct {
	room     *Room
	clock    *clock
	registry *fakeRegistry
}

func newTestRoom(t *testing.T, hostUserID string, settings Settings, recorder GameRecorder) *roomFixture {
	t.Helper()
	clk := &clock{now: epoch}
	registry := &fakeRegistry{}
	catalog := makeCatalog(t,
		makeDeck("base", 30, 40, 0),
		makeDeck("extra", 30, 40, 0),
		makeDeck("tiny", 5, 5, 0),
	)
	deps := RoomDeps{
		Catalog:   catalog,
		Recorder:  recorder,
		Registry:  registry,
		Tickers:   newFakeTickers(),
		Rand:      rand.New(rand.NewPCG(7, 11)),
		NewCardID: cardIDs(),
		Now:       clk.Now,
	}
	return &roomFixture{
		room:     NewRoom(epoch.UnixMilli(), hostUserID, settings, deps),
		clock:    clk,
		registry: registry,
	}
}

func playableSettings() Settings {
	s := DefaultSettings()
	s.DeckIDs = []string{"base", "extra"}
	return s
}

func (f *roomFixture) join(t *testing.T, name string, guest bool) (*Player, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	p, err := f.room.attach(conn, domain.Identity{Id: "u-" + name, Name: name, IsGuest: guest}, f.room.settings.Password)
	require.NoError(t, err)
	f.room.flush()
	return p, conn
}

func (f *roomFixture) do(p *Player, cmd Command) {
	f.room.handleMessage(roomMessage{from: p, conn: p.conn, cmd: cmd}, f.clock.now)
	f.room.flush()
}

func (f *roomFixture) tick(d time.Duration) {
	f.room.handleTick(f.clock.advance(d))
	f.room.flush()
}

// submitFirst plays the first cards of p's hand for the current prompt.
func (f *roomFixture) submitFirst(p *Player) {
	n := f.room.currentRound().Prompt.Blanks()
	picks := make([]CardPick, 0, n)
	for _, c := range p.Hand[:n] {
		picks = append(picks, CardPick{ID: c.ID, Text: "written in"})
	}
	f.do(p, SubmitCardsCommand{Picks: picks})
}
