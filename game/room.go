package game

import (
	"context"
	"encoding/json"
	"haters/cards"
	"haters/domain"
	"math/rand/v2"
	"runtime/debug"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	MinPromptCards   = 50
	MinResponseCards = 50
	MinPlayers       = 2

	judgingWindow    = 60 * time.Second
	roundEndPause    = 5 * time.Second
	lobbyIdleTimeout = 10 * time.Minute
	persistTimeout   = 10 * time.Second
	tickInterval     = time.Second
)

type Phase int

const (
	PhaseLobby Phase = iota
	PhaseRoundStart
	PhaseCollecting
	PhaseJudging
	PhaseRoundEnd
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseRoundStart:
		return "round_start"
	case PhaseCollecting:
		return "collecting"
	case PhaseJudging:
		return "judging"
	case PhaseRoundEnd:
		return "round_end"
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := PhaseLobby; candidate <= PhaseRoundEnd; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return ErrMalformedPayload
}

// RoomDeps are the collaborators a room needs. Zero fields get production
// defaults in NewRoom.
type RoomDeps struct {
	Catalog   DeckCatalog
	Recorder  GameRecorder
	Registry  RoomRegistry
	Tickers   TickerCreator
	Rand      *rand.Rand
	NewCardID func() string
	Now       func() time.Time
}

type roomMessage struct {
	from *Player
	conn Connection
	cmd  Command
}

type attachRequest struct {
	conn     Connection
	identity domain.Identity
	password string
	reply    chan attachResult
}

type attachResult struct {
	player *Player
	err    error
}

type detachRequest struct {
	player *Player
	conn   Connection
}

type sendTask struct {
	conn   Connection
	data   []byte
	close  bool
	reason string
}

// Room is an actor. Run owns every field below the channels; the exported
// methods only talk to it through those channels.
type Room struct {
	id         int64
	encodedID  string
	hostUserID string
	createdAt  time.Time
	startedAt  time.Time

	settings     Settings
	players      []*Player
	decks        []*cards.Deck
	host         *Player
	started      bool
	phase        Phase
	judgeCursor  int
	rounds       []*Round
	deadline     time.Time
	nextPlayerID int
	usedPrompts  map[string]struct{}
	emptySince   time.Time
	closed       bool

	deps   RoomDeps
	log    zerolog.Logger
	outbox []sendTask

	inbox      chan roomMessage
	attachReqs chan attachRequest
	detachReqs chan detachRequest
	done       chan struct{}
}

func NewRoom(id int64, hostUserID string, settings Settings, deps RoomDeps) *Room {
	if deps.Tickers == nil {
		deps.Tickers = NewTickerGen()
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if deps.NewCardID == nil {
		deps.NewCardID = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	encodedID := EncodeID(id)
	now := deps.Now()

	return &Room{
		id:          id,
		encodedID:   encodedID,
		hostUserID:  hostUserID,
		createdAt:   now,
		settings:    settings.clone(),
		phase:       PhaseLobby,
		judgeCursor: -1,
		usedPrompts: make(map[string]struct{}),
		emptySince:  now,
		deps:        deps,
		log:         log.With().Str("room", encodedID).Logger(),
		inbox:       make(chan roomMessage, 256),
		attachReqs:  make(chan attachRequest),
		detachReqs:  make(chan detachRequest, 64),
		done:        make(chan struct{}),
	}
}

func (r *Room) ID() string {
	return r.encodedID
}

func (r *Room) NumericID() int64 {
	return r.id
}

// Done is closed once the room loop has exited.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Attach binds conn to the player behind identity, creating the player on
// first sight.
func (r *Room) Attach(ctx context.Context, conn Connection, identity domain.Identity, password string) (*Player, error) {
	req := attachRequest{conn: conn, identity: identity, password: password, reply: make(chan attachResult, 1)}

	select {
	case r.attachReqs <- req:
	case <-r.done:
		return nil, ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.player, res.err
	case <-r.done:
		select {
		case res := <-req.reply:
			return res.player, res.err
		default:
			return nil, ErrRoomClosed
		}
	}
}

// Detach tells the room that conn is gone. It is ignored when the player has
// already been rebound to another connection.
func (r *Room) Detach(player *Player, conn Connection) {
	select {
	case r.detachReqs <- detachRequest{player: player, conn: conn}:
	case <-r.done:
	}
}

// Send queues a command from a player for the room loop.
func (r *Room) Send(ctx context.Context, from *Player, conn Connection, cmd Command) error {
	select {
	case r.inbox <- roomMessage{from: from, conn: conn, cmd: cmd}:
		return nil
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) Run(ctx context.Context) {
	ticks, stop := r.deps.Tickers.Create(tickInterval)
	defer stop()
	defer close(r.done)
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("room loop crashed")
			r.crash()
		}
	}()

	r.log.Info().Msg("room started")

	for !r.closed {
		select {
		case <-ctx.Done():
			r.destroy(ErrServerShutdown, r.deps.Now())
		case now := <-ticks:
			r.handleTick(now)
		case req := <-r.attachReqs:
			player, err := r.attach(req.conn, req.identity, req.password)
			req.reply <- attachResult{player: player, err: err}
		case req := <-r.detachReqs:
			r.detach(req.player, req.conn)
		case msg := <-r.inbox:
			r.handleMessage(msg, r.deps.Now())
		}
		r.flush()
	}

	r.log.Info().Msg("room closed")
}

func (r *Room) crash() {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("room teardown failed")
		}
	}()

	r.closed = true
	if r.deps.Registry != nil {
		r.deps.Registry.RemoveRoom(r.encodedID)
	}

	r.outbox = nil
	for _, p := range r.players {
		if p.conn != nil {
			r.notify(p, ErrRoomCrashed)
			r.queueClose(p.conn, ErrRoomCrashed.Code)
			p.conn = nil
		}
	}
	r.flush()
}

func (r *Room) handleTick(now time.Time) {
	if r.phase == PhaseLobby {
		r.checkIdle(now)
		return
	}

	if r.deadline.IsZero() || now.Before(r.deadline) {
		return
	}

	switch r.phase {
	case PhaseCollecting:
		r.endCollecting(now)
	case PhaseJudging:
		r.judgeTimedOut(now)
	case PhaseRoundEnd:
		r.nextRound(now)
	}
}

func (r *Room) checkIdle(now time.Time) {
	if len(r.activePlayers()) > 0 {
		r.emptySince = time.Time{}
		return
	}
	if r.emptySince.IsZero() {
		r.emptySince = now
		return
	}
	if now.Sub(r.emptySince) >= lobbyIdleTimeout {
		r.destroy(ErrRoomIdle, now)
	}
}

func (r *Room) handleMessage(msg roomMessage, now time.Time) {
	p := msg.from
	if p == nil || p.conn == nil || p.conn != msg.conn || !slices.Contains(r.players, p) {
		return
	}

	switch cmd := msg.cmd.(type) {
	case StartGameCommand:
		r.startGame(p, now)
	case UpdateSettingsCommand:
		r.updateSettings(p, cmd.Patch)
	case SubmitCardsCommand:
		r.submit(p, cmd.Picks, now)
	case JudgePickCommand:
		r.judgePick(p, cmd.PlayerID, now)
	case IdentifyCommand, HeartbeatCommand:
		// session level, never forwarded
	}
}

func (r *Room) attach(conn Connection, identity domain.Identity, password string) (*Player, error) {
	if p := r.playerByUser(identity.Id); p != nil {
		if p.conn != nil && p.conn != conn {
			r.notify(p, ErrReplaced)
			r.queueClose(p.conn, ErrReplaced.Code)
		}
		p.conn = conn
		p.Active = true
		if r.host == nil || !r.host.Active {
			r.setHost(p)
		}
		r.log.Info().Int("player", p.ID).Msg("player rejoined")

		r.welcome(p)
		r.broadcastEventExcept(p, EventPlayerUpdate, p.view())
		r.updateDescription()
		return p, nil
	}

	if r.settings.Password != "" && password != r.settings.Password {
		return nil, ErrWrongPassword
	}
	if identity.IsGuest && !r.settings.AllowGuests {
		return nil, ErrGuestsNotAllowed
	}
	if r.settings.PlayerLimit > 0 && len(r.activePlayers()) >= r.settings.PlayerLimit {
		return nil, ErrRoomFull
	}

	r.nextPlayerID++
	p := newPlayer(r.nextPlayerID, identity, conn)
	renamed := r.resolveNameCollision(p)
	r.players = append(r.players, p)

	if r.host == nil || !r.host.Active || identity.Id == r.hostUserID {
		r.setHost(p)
	}
	r.log.Info().Int("player", p.ID).Str("name", p.DisplayName).Bool("guest", p.IsGuest).Msg("player joined")

	r.welcome(p)
	if renamed != nil {
		r.broadcastEventExcept(p, EventPlayerUpdate, renamed.view())
	}
	r.broadcastEventExcept(p, EventPlayerAddition, p.view())
	r.updateDescription()
	return p, nil
}

// resolveNameCollision makes p's display name unique. A guest takes the
// suffix itself. A registered newcomer keeps its name and the player already
// using it is renamed instead, which is returned.
func (r *Room) resolveNameCollision(p *Player) *Player {
	taken := make(map[string]struct{}, len(r.players))
	var holder *Player
	for _, other := range r.players {
		taken[other.DisplayName] = struct{}{}
		if other.DisplayName == p.DisplayName {
			holder = other
		}
	}
	if holder == nil {
		return nil
	}

	if p.IsGuest {
		p.DisplayName = uniqueName(p.DisplayName, taken)
		return nil
	}

	holder.DisplayName = uniqueName(holder.DisplayName, taken)
	return holder
}

func uniqueName(name string, taken map[string]struct{}) string {
	for n := 1; ; n++ {
		candidate := name + "(" + strconv.Itoa(n) + ")"
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

func (r *Room) welcome(p *Player) {
	r.sendEvent(p, EventGameUpdate, r.view(p))
	r.sendEvent(p, EventPlayerUpdate, p.privateView())
	if rd := r.currentRound(); rd != nil && r.phase != PhaseLobby {
		r.sendEvent(p, EventRoundUpdate, rd.view(r.phase, r.deadline, r.phase == PhaseJudging))
	}
}

func (r *Room) detach(p *Player, conn Connection) {
	if p == nil || p.conn == nil || p.conn != conn || !slices.Contains(r.players, p) {
		return
	}

	p.conn = nil
	p.Active = false
	r.log.Info().Int("player", p.ID).Msg("player left")

	if p.IsHost {
		r.handOffHost(p)
	}
	r.broadcastEvent(EventPlayerUpdate, p.view())
	r.updateDescription()
}

func (r *Room) setHost(p *Player) {
	if r.host != nil && r.host != p {
		r.host.IsHost = false
		r.broadcastEventExcept(p, EventPlayerUpdate, r.host.view())
	}
	p.IsHost = true
	r.host = p
}

// handOffHost gives the host role to the first other active player. When
// nobody is left the role stays put until someone joins.
func (r *Room) handOffHost(old *Player) {
	for _, p := range r.players {
		if p != old && p.Active && !p.IsSpectator {
			r.setHost(p)
			r.broadcastEvent(EventPlayerUpdate, p.view())
			return
		}
	}
}

func (r *Room) updateSettings(p *Player, patch SettingsPatch) {
	if !p.IsHost {
		r.notify(p, ErrNotHost)
		return
	}

	if r.settings.Apply(patch, r.knownDeck) {
		r.log.Debug().Msg("settings updated")
	}
	for _, other := range r.players {
		r.sendEvent(other, EventGameUpdate, r.view(other))
	}
	r.updateDescription()
}

func (r *Room) knownDeck(id string) bool {
	if r.deps.Catalog == nil {
		return false
	}
	_, ok := r.deps.Catalog.Deck(id)
	return ok
}

func (r *Room) resolveDecks() []*cards.Deck {
	if r.deps.Catalog == nil {
		return nil
	}
	var decks []*cards.Deck
	for _, id := range r.settings.Decks() {
		if d, ok := r.deps.Catalog.Deck(id); ok {
			decks = append(decks, d)
		}
	}
	return decks
}

// canStart checks the start preconditions in a fixed order so the reported
// reason is deterministic.
func (r *Room) canStart(p *Player) error {
	if !p.IsHost {
		return ErrNotHost
	}
	if r.started {
		return ErrAlreadyStarted
	}

	decks := r.resolveDecks()
	if len(decks) == 0 {
		return ErrNoDecks
	}

	prompts, responses := 0, 0
	for _, d := range decks {
		prompts += len(d.Prompts)
		responses += len(d.Responses)
	}
	if prompts < MinPromptCards {
		return ErrNotEnoughPrompts
	}
	if responses < MinResponseCards {
		return ErrNotEnoughResponses
	}

	if len(r.activePlayers()) < MinPlayers {
		return ErrNotEnoughPlayers
	}
	return nil
}

func (r *Room) startGame(p *Player, now time.Time) {
	if err := r.canStart(p); err != nil {
		r.notify(p, err)
		return
	}

	r.started = true
	r.startedAt = now
	r.rounds = nil
	r.usedPrompts = make(map[string]struct{})
	r.log.Info().Int("players", len(r.activePlayers())).Msg("game started")

	r.broadcastEvent(EventGameStart, r.view(nil))
	r.updateDescription()
	r.startRound(now)
}

func (r *Room) startRound(now time.Time) {
	r.phase = PhaseRoundStart
	r.deadline = time.Time{}

	if decks := r.resolveDecks(); len(decks) > 0 {
		r.decks = decks
	}

	eligible := r.activePlayers()
	if len(eligible) < MinPlayers {
		r.destroy(ErrNotEnoughPlayers, now)
		return
	}

	r.judgeCursor++
	judge := eligible[r.judgeCursor%len(eligible)]
	judge.IsJudge = true

	rd := newRound(len(r.rounds)+1, eligible, judge, now)
	r.rounds = append(r.rounds, rd)
	r.broadcastEvent(EventRoundUpdate, rd.view(r.phase, r.deadline, false))

	r.deal()

	rd.Prompt = r.drawPrompt()
	r.usedPrompts[rd.Prompt.Text] = struct{}{}

	r.phase = PhaseCollecting
	r.deadline = now.Add(r.settings.CollectingWindow())
	r.log.Debug().Int("round", rd.Number).Int("judge", judge.ID).Msg("round started")
	r.broadcastEvent(EventRoundUpdate, rd.view(r.phase, r.deadline, false))
	r.updateDescription()
}

// deal refills every hand. forbidden starts with every text already held so
// no two players ever hold the same wording.
func (r *Room) deal() {
	forbidden := make(map[string]struct{})
	for _, p := range r.players {
		for _, c := range p.Hand {
			if !c.IsBlank() {
				forbidden[c.Text] = struct{}{}
			}
		}
	}

	for _, p := range r.players {
		p.Submission = nil
		if p.IsSpectator {
			continue
		}
		p.fillHand(HandSize, forbidden, r.decks, r.deps.Rand, r.deps.NewCardID)
		r.sendEvent(p, EventPlayerUpdate, p.privateView())
	}
}

// drawPrompt prefers decks that still have unused prompts and only repeats
// one when every deck is used up.
func (r *Room) drawPrompt() cards.Card {
	order := r.deps.Rand.Perm(len(r.decks))

	for _, i := range order {
		d := r.decks[i]
		if !hasFreshPrompt(d, r.usedPrompts) {
			continue
		}
		if card, ok := d.DrawPrompt(r.deps.Rand, r.usedPrompts); ok {
			return card
		}
	}

	for _, i := range order {
		if card, ok := r.decks[i].DrawPrompt(r.deps.Rand, r.usedPrompts); ok {
			return card
		}
	}
	return cards.NewPrompt("", "")
}

func hasFreshPrompt(d *cards.Deck, used map[string]struct{}) bool {
	for _, c := range d.Prompts {
		if _, ok := used[c.Text]; !ok {
			return true
		}
	}
	return false
}

func (r *Room) submit(p *Player, picks []CardPick, now time.Time) {
	rd := r.currentRound()
	if rd == nil || r.phase != PhaseCollecting {
		r.notify(p, ErrNoActiveRound)
		return
	}

	if err := rd.Submit(p, picks); err != nil {
		r.notify(p, err)
		return
	}

	r.sendEvent(p, EventPlayerUpdate, p.privateView())
	r.broadcastEvent(EventRoundUpdate, rd.view(r.phase, r.deadline, false))

	if rd.allSubmitted() {
		r.endCollecting(now)
	}
}

func (r *Room) endCollecting(now time.Time) {
	rd := r.currentRound()

	for _, p := range rd.awaiting() {
		r.kick(p, ErrInactivity)
	}

	switch len(rd.Submissions) {
	case 0:
		r.endRound(now)
		return
	case 1:
		r.phase = PhaseJudging
		rd.autoResolve()
		rd.award()
		r.endRound(now)
		return
	}

	r.phase = PhaseJudging
	r.deadline = now.Add(judgingWindow)
	r.broadcastEvent(EventRoundUpdate, rd.view(r.phase, r.deadline, true))
}

func (r *Room) judgePick(p *Player, playerID int, now time.Time) {
	rd := r.currentRound()
	if rd == nil || r.phase != PhaseJudging {
		r.notify(p, ErrNoActiveRound)
		return
	}

	if err := rd.JudgePick(p, playerID); err != nil {
		r.notify(p, err)
		return
	}

	rd.award()
	r.endRound(now)
}

func (r *Room) judgeTimedOut(now time.Time) {
	rd := r.currentRound()
	r.kick(rd.Judge, ErrInactivity)
	r.endRound(now)
}

type RoundEndView struct {
	Round   RoundView    `json:"round"`
	Players []PlayerView `json:"players"`
}

func (r *Room) endRound(now time.Time) {
	rd := r.currentRound()

	r.phase = PhaseRoundEnd
	r.deadline = now.Add(roundEndPause)
	for _, p := range r.players {
		p.IsJudge = false
	}

	if rd.Winner != nil {
		r.log.Debug().Int("round", rd.Number).Int("winner", rd.Winner.ID).Msg("round won")
	}
	r.broadcastEvent(EventRoundEnd, RoundEndView{
		Round:   rd.view(r.phase, r.deadline, true),
		Players: r.playerViews(),
	})
}

func (r *Room) nextRound(now time.Time) {
	if len(r.leaders()) > 0 {
		r.endGame(now)
		return
	}
	r.startRound(now)
}

// leaders are the players who reached the score limit.
func (r *Room) leaders() []*Player {
	var out []*Player
	for _, p := range r.players {
		if p.Score >= r.settings.ScoreLimit {
			out = append(out, p)
		}
	}
	return out
}

type GameEndView struct {
	Winners []int        `json:"winners"`
	Players []PlayerView `json:"players"`
	Rounds  int          `json:"rounds"`
}

// endGame announces the result, records it and puts the room back in the
// lobby so the same players can go again.
func (r *Room) endGame(now time.Time) {
	winners := r.leaders()
	ids := make([]int, 0, len(winners))
	for _, p := range winners {
		ids = append(ids, p.ID)
	}

	r.broadcastEvent(EventGameEnd, GameEndView{Winners: ids, Players: r.playerViews(), Rounds: len(r.rounds)})
	r.log.Info().Ints("winners", ids).Int("rounds", len(r.rounds)).Msg("game over")
	r.persist(now, winners)

	r.started = false
	r.phase = PhaseLobby
	r.deadline = time.Time{}
	r.rounds = nil
	r.usedPrompts = make(map[string]struct{})
	for _, p := range r.players {
		p.Score = 0
		p.Hand = nil
		p.Submission = nil
		p.IsJudge = false
	}
	if len(r.activePlayers()) == 0 {
		r.emptySince = now
	}

	for _, p := range r.players {
		r.sendEvent(p, EventGameUpdate, r.view(p))
		r.sendEvent(p, EventPlayerUpdate, p.privateView())
	}
	r.updateDescription()
}

// destroy closes the room for good. A game in progress is recorded first.
func (r *Room) destroy(reason *Error, now time.Time) {
	if r.closed {
		return
	}
	r.log.Info().Str("reason", reason.Code).Msg("destroying room")

	if r.started && len(r.rounds) > 0 {
		r.persist(now, nil)
	}

	for _, p := range r.players {
		if p.conn != nil {
			r.notify(p, reason)
			r.queueClose(p.conn, reason.Code)
			p.conn = nil
		}
		p.Active = false
	}

	r.started = false
	r.closed = true
	if r.deps.Registry != nil {
		r.deps.Registry.RemoveRoom(r.encodedID)
	}
}

func (r *Room) kick(p *Player, reason *Error) {
	p.Active = false
	if p.conn != nil {
		r.notify(p, reason)
		r.queueClose(p.conn, reason.Code)
		p.conn = nil
	}
	r.log.Info().Int("player", p.ID).Str("reason", reason.Code).Msg("player kicked")

	if p.IsHost {
		r.handOffHost(p)
	}
	r.broadcastEvent(EventPlayerUpdate, p.view())
	r.updateDescription()
}

type gameRecord struct {
	ID        string         `json:"id"`
	Rounds    []RoundView    `json:"rounds"`
	StartedAt time.Time      `json:"started_at"`
	Duration  float64        `json:"duration"`
	Players   []recordPlayer `json:"players"`
}

type recordPlayer struct {
	PlayerView
	UserID string `json:"user_id,omitempty"`
}

func (r *Room) record(now time.Time) gameRecord {
	rec := gameRecord{
		ID:        r.encodedID,
		Rounds:    make([]RoundView, 0, len(r.rounds)),
		StartedAt: r.startedAt,
		Duration:  now.Sub(r.startedAt).Seconds(),
		Players:   make([]recordPlayer, 0, len(r.players)),
	}
	for _, rd := range r.rounds {
		rec.Rounds = append(rec.Rounds, rd.view(PhaseRoundEnd, time.Time{}, true))
	}
	for _, p := range r.players {
		rp := recordPlayer{PlayerView: p.view()}
		if !p.IsGuest {
			rp.UserID = p.UserID
		}
		rec.Players = append(rec.Players, rp)
	}
	return rec
}

func (r *Room) persist(now time.Time, winners []*Player) {
	if r.deps.Recorder == nil {
		return
	}

	data, err := json.Marshal(r.record(now))
	if err != nil {
		r.log.Error().Err(err).Msg("encoding game record")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := r.deps.Recorder.SaveRoom(ctx, r.encodedID, r.startedAt, data); err != nil {
		r.log.Error().Err(err).Msg("saving game record")
	}

	for _, p := range r.players {
		if p.IsGuest || p.UserID == "" {
			continue
		}
		won := slices.Contains(winners, p)
		if err := r.deps.Recorder.RecordResult(ctx, p.UserID, p.Score, won, r.encodedID); err != nil {
			r.log.Error().Err(err).Str("user", p.UserID).Msg("recording player result")
		}
	}
}

func (r *Room) currentRound() *Round {
	if len(r.rounds) == 0 {
		return nil
	}
	return r.rounds[len(r.rounds)-1]
}

func (r *Room) activePlayers() []*Player {
	var out []*Player
	for _, p := range r.players {
		if p.Active && !p.IsSpectator {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) playerByUser(userID string) *Player {
	for _, p := range r.players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (r *Room) playerViews() []PlayerView {
	views := make([]PlayerView, 0, len(r.players))
	for _, p := range r.players {
		views = append(views, p.view())
	}
	return views
}

type DeckView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortCode string `json:"short_code"`
	Prompts   int    `json:"prompts"`
	Responses int    `json:"responses"`
}

type RoomView struct {
	ID        string       `json:"id"`
	You       int          `json:"you,omitempty"`
	Host      int          `json:"host"`
	Started   bool         `json:"started"`
	Phase     Phase        `json:"phase"`
	Round     int          `json:"round"`
	Deadline  int64        `json:"deadline,omitempty"`
	CreatedAt int64        `json:"created_at"`
	Settings  SettingsView `json:"settings"`
	Decks     []DeckView   `json:"decks"`
	Players   []PlayerView `json:"players"`
}

// view is the full room snapshot as seen by recipient. A nil recipient gets
// the public version.
func (r *Room) view(recipient *Player) RoomView {
	v := RoomView{
		ID:        r.encodedID,
		Started:   r.started,
		Phase:     r.phase,
		Round:     len(r.rounds),
		CreatedAt: r.createdAt.UnixMilli(),
		Settings:  r.settings.view(recipient != nil && recipient.IsHost),
		Decks:     make([]DeckView, 0, len(r.settings.Decks())),
		Players:   r.playerViews(),
	}
	if recipient != nil {
		v.You = recipient.ID
	}
	if r.host != nil {
		v.Host = r.host.ID
	}
	if !r.deadline.IsZero() {
		v.Deadline = r.deadline.UnixMilli()
	}
	for _, d := range r.resolveDecks() {
		v.Decks = append(v.Decks, DeckView{
			ID:        d.ID,
			Name:      d.Name,
			ShortCode: d.ShortCode,
			Prompts:   len(d.Prompts),
			Responses: len(d.Responses),
		})
	}
	return v
}

type RoomDescription struct {
	ID          string    `json:"id"`
	Host        string    `json:"host"`
	Players     int       `json:"players"`
	PlayerLimit int       `json:"player_limit"`
	Started     bool      `json:"started"`
	Locked      bool      `json:"locked"`
	AllowGuests bool      `json:"allow_guests"`
	Round       int       `json:"round"`
	ScoreLimit  int       `json:"score_limit"`
	Decks       []string  `json:"decks"`
	CreatedAt   time.Time `json:"created_at"`
}

// Description summarises the room for discovery. Only call it from the room
// goroutine or before Run.
func (r *Room) Description() RoomDescription {
	desc := RoomDescription{
		ID:          r.encodedID,
		Players:     len(r.activePlayers()),
		PlayerLimit: r.settings.PlayerLimit,
		Started:     r.started,
		Locked:      r.settings.Password != "",
		AllowGuests: r.settings.AllowGuests,
		Round:       len(r.rounds),
		ScoreLimit:  r.settings.ScoreLimit,
		Decks:       r.settings.Decks(),
		CreatedAt:   r.createdAt,
	}
	if r.host != nil {
		desc.Host = r.host.DisplayName
	}
	return desc
}

func (r *Room) updateDescription() {
	if r.deps.Registry != nil && !r.closed {
		r.deps.Registry.UpdateDescription(r.Description())
	}
}

func (r *Room) sendEvent(p *Player, event string, payload any) {
	if p.conn == nil {
		return
	}
	data, err := encodeEvent(event, payload)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("encoding event")
		return
	}
	r.outbox = append(r.outbox, sendTask{conn: p.conn, data: data})
}

func (r *Room) broadcastEvent(event string, payload any) {
	r.broadcastEventExcept(nil, event, payload)
}

func (r *Room) broadcastEventExcept(except *Player, event string, payload any) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("encoding event")
		return
	}
	for _, p := range r.players {
		if p == except || p.conn == nil {
			continue
		}
		r.outbox = append(r.outbox, sendTask{conn: p.conn, data: data})
	}
}

func (r *Room) notify(p *Player, err error) {
	if p.conn == nil {
		return
	}
	r.outbox = append(r.outbox, sendTask{conn: p.conn, data: encodeNotice(err)})
}

func (r *Room) queueClose(conn Connection, reason string) {
	r.outbox = append(r.outbox, sendTask{conn: conn, close: true, reason: reason})
}

// flush delivers everything queued by the last event. A failed send only
// costs that one recipient its message.
func (r *Room) flush() {
	for _, task := range r.outbox {
		if task.close {
			task.conn.Close(task.reason)
			continue
		}
		if err := task.conn.Send(task.data); err != nil {
			r.log.Warn().Err(err).Msg("dropping message for unreachable player")
		}
	}
	r.outbox = nil
}
