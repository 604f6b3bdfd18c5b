package game

import (
	"context"
	"encoding/json"
	"errors"
	"haters/domain"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRoomFullRound(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", playableSettings(), nil)

	alice, aliceConn := f.join(t, "alice", false)
	bob, bobConn := f.join(t, "bob", false)
	carol, _ := f.join(t, "carol", true)

	require.True(t, alice.IsHost)
	f.do(alice, StartGameCommand{})

	require.True(t, f.room.started)
	require.Equal(t, PhaseCollecting, f.room.phase)
	assert.Equal(t, 0, f.room.judgeCursor)

	rd := f.room.currentRound()
	require.NotNil(t, rd)
	assert.Same(t, alice, rd.Judge, "first judge is eligible[0]")
	assert.True(t, alice.IsJudge)
	assert.Equal(t, epoch.Add(90*time.Second), f.room.deadline)

	seenIDs := map[string]bool{}
	seenTexts := map[string]bool{}
	for _, p := range []*Player{alice, bob, carol} {
		require.Len(t, p.Hand, HandSize)
		for _, c := range p.Hand {
			assert.False(t, seenIDs[c.ID], "card id %s dealt twice", c.ID)
			assert.False(t, seenTexts[c.Text], "text %q dealt twice", c.Text)
			seenIDs[c.ID] = true
			seenTexts[c.Text] = true
		}
	}

	f.submitFirst(bob)
	assert.Equal(t, PhaseCollecting, f.room.phase)
	assert.Len(t, bob.Hand, HandSize-1)

	f.submitFirst(carol)
	assert.Equal(t, PhaseJudging, f.room.phase, "judging starts as soon as everyone submitted")
	assert.Equal(t, f.clock.now.Add(judgingWindow), f.room.deadline)

	var judging RoundView
	aliceConn.last(t, EventRoundUpdate, &judging)
	assert.Equal(t, PhaseJudging, judging.Phase)
	assert.Len(t, judging.Submissions, 2)

	f.do(alice, JudgePickCommand{PlayerID: bob.ID})
	assert.Equal(t, 1, bob.Score)
	assert.Equal(t, 0, carol.Score)
	assert.Equal(t, PhaseRoundEnd, f.room.phase)
	assert.False(t, alice.IsJudge)

	var summary RoundEndView
	bobConn.last(t, EventRoundEnd, &summary)
	require.NotNil(t, summary.Round.Winner)
	assert.Equal(t, bob.ID, *summary.Round.Winner)

	f.tick(roundEndPause)
	assert.Equal(t, PhaseCollecting, f.room.phase)
	assert.Equal(t, 1, f.room.judgeCursor)
	assert.Same(t, bob, f.room.currentRound().Judge)
	assert.Len(t, bob.Hand, HandSize, "hands are topped up every round")
}

func TestRoomWrongPassword(t *testing.T) {
	t.Parallel()
	settings := playableSettings()
	settings.Password = "hunter2"
	f := newTestRoom(t, "u-alice", settings, nil)
	f.join(t, "alice", false)

	p, err := f.room.attach(&fakeConn{}, domain.Identity{Id: "u-mallory", Name: "mallory"}, "guess")
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.Equal(t, KindAuthorization, KindOf(err))
	assert.Len(t, f.room.players, 1)
}

func TestRoomAttachPolicies(t *testing.T) {
	t.Parallel()

	t.Run("guests refused", func(t *testing.T) {
		settings := playableSettings()
		settings.AllowGuests = false
		f := newTestRoom(t, "u-alice", settings, nil)
		_, err := f.room.attach(&fakeConn{}, domain.Identity{Id: "g-1", Name: "guest", IsGuest: true}, "")
		assert.ErrorIs(t, err, ErrGuestsNotAllowed)
		assert.Empty(t, f.room.players)
	})

	t.Run("player limit", func(t *testing.T) {
		settings := playableSettings()
		settings.PlayerLimit = 2
		f := newTestRoom(t, "u-alice", settings, nil)
		f.join(t, "alice", false)
		f.join(t, "bob", false)
		_, err := f.room.attach(&fakeConn{}, domain.Identity{Id: "u-carol", Name: "carol"}, "")
		assert.ErrorIs(t, err, ErrRoomFull)
		assert.Equal(t, KindCapacity, KindOf(err))
	})

	t.Run("password checked before guest policy", func(t *testing.T) {
		settings := playableSettings()
		settings.Password = "pw"
		settings.AllowGuests = false
		f := newTestRoom(t, "u-alice", settings, nil)
		_, err := f.room.attach(&fakeConn{}, domain.Identity{Id: "g-1", Name: "guest", IsGuest: true}, "nope")
		assert.ErrorIs(t, err, ErrWrongPassword)
	})
}

func TestRoomSettingsUpdate(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", playableSettings(), nil)
	alice, aliceConn := f.join(t, "alice", false)
	bob, bobConn := f.join(t, "bob", false)

	patch, err := DecodeSettingsPatch(json.RawMessage(`{"score_limit":"abc","timer_limit":2.0}`))
	require.NoError(t, err)

	f.do(alice, UpdateSettingsCommand{Patch: patch})
	assert.Equal(t, DefaultScoreLimit, f.room.settings.ScoreLimit)
	assert.Equal(t, 2.0, f.room.settings.TimerMinutes)
	assert.Empty(t, aliceConn.notices())

	var snapshot RoomView
	bobConn.last(t, EventGameUpdate, &snapshot)
	assert.Equal(t, 2.0, snapshot.Settings.TimerLimit)
	assert.Equal(t, DefaultScoreLimit, snapshot.Settings.ScoreLimit)

	limit := 3
	f.do(bob, UpdateSettingsCommand{Patch: SettingsPatch{ScoreLimit: &limit}})
	assert.Equal(t, DefaultScoreLimit, f.room.settings.ScoreLimit)
	notices := bobConn.notices()
	require.NotEmpty(t, notices)
	assert.Equal(t, ErrNotHost.Code, notices[len(notices)-1].Reason)
}

func TestRoomPasswordVisibility(t *testing.T) {
	t.Parallel()
	settings := playableSettings()
	settings.Password = "pw"
	f := newTestRoom(t, "u-alice", settings, nil)
	_, aliceConn := f.join(t, "alice", false)
	_, bobConn := f.join(t, "bob", false)

	var hostView, guestView RoomView
	aliceConn.last(t, EventGameUpdate, &hostView)
	bobConn.last(t, EventGameUpdate, &guestView)
	assert.Equal(t, []any{true, "pw", false}, hostView.Settings.Password)
	assert.Equal(t, []any{true, "", false}, guestView.Settings.Password)
}

func TestRoomStartGamePreconditions(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		description string
		decks       []string
		players     int
		byHost      bool
		started     bool
		expectedErr error
	}{
		{description: "not host", decks: []string{"base", "extra"}, players: 2, byHost: false, expectedErr: ErrNotHost},
		{description: "already started", decks: []string{"base", "extra"}, players: 2, byHost: true, started: true, expectedErr: ErrAlreadyStarted},
		{description: "no packs", decks: nil, players: 2, byHost: true, expectedErr: ErrNoDecks},
		{description: "too few prompts", decks: []string{"base"}, players: 2, byHost: true, expectedErr: ErrNotEnoughPrompts},
		{description: "small packs still fall short", decks: []string{"tiny", "base"}, players: 2, byHost: true, expectedErr: ErrNotEnoughPrompts},
		{description: "one player", decks: []string{"base", "extra"}, players: 1, byHost: true, expectedErr: ErrNotEnoughPlayers},
		{description: "ok", decks: []string{"base", "extra"}, players: 2, byHost: true, expectedErr: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			t.Parallel()
			settings := DefaultSettings()
			settings.DeckIDs = tc.decks
			f := newTestRoom(t, "u-p0", settings, nil)

			var players []*Player
			for i := range tc.players {
				p, _ := f.join(t, "p"+strconv.Itoa(i), false)
				players = append(players, p)
			}
			f.room.started = tc.started

			caller := players[0]
			if !tc.byHost {
				caller = players[1]
			}

			err := f.room.canStart(caller)
			if tc.expectedErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestRoomStartRejectsSmallResponsePool(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", DefaultSettings(), nil)
	f.room.deps.Catalog = makeCatalog(t, makeDeck("prompts", 60, 10, 0))
	f.room.settings.DeckIDs = []string{"prompts"}
	alice, conn := f.join(t, "alice", false)
	f.join(t, "bob", false)

	f.do(alice, StartGameCommand{})
	assert.False(t, f.room.started)
	notices := conn.notices()
	require.NotEmpty(t, notices)
	assert.Equal(t, "not-enough-white-cards", notices[len(notices)-1].Reason)
}

func TestResolveNameCollision(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		description   string
		existing      []string
		newcomer      string
		guest         bool
		expectedNew   string
		expectedNames []string
	}{
		{
			description:   "no collision",
			existing:      []string{"Alice"},
			newcomer:      "Bob",
			guest:         true,
			expectedNew:   "Bob",
			expectedNames: []string{"Alice"},
		},
		{
			description:   "guest takes the smallest free suffix",
			existing:      []string{"Bob", "Bob(1)"},
			newcomer:      "Bob",
			guest:         true,
			expectedNew:   "Bob(2)",
			expectedNames: []string{"Bob", "Bob(1)"},
		},
		{
			description:   "registered newcomer keeps the name",
			existing:      []string{"Bob"},
			newcomer:      "Bob",
			guest:         false,
			expectedNew:   "Bob",
			expectedNames: []string{"Bob(1)"},
		},
		{
			description:   "registered newcomer renames the holder past taken suffixes",
			existing:      []string{"Bob(1)", "Bob"},
			newcomer:      "Bob",
			guest:         false,
			expectedNew:   "Bob",
			expectedNames: []string{"Bob(1)", "Bob(2)"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			t.Parallel()
			r := &Room{}
			for i, name := range tc.existing {
				r.players = append(r.players, &Player{ID: i + 1, DisplayName: name, IsGuest: true})
			}
			p := &Player{ID: 99, DisplayName: tc.newcomer, IsGuest: tc.guest}

			r.resolveNameCollision(p)

			assert.Equal(t, tc.expectedNew, p.DisplayName)
			var names []string
			for _, other := range r.players {
				names = append(names, other.DisplayName)
			}
			assert.Equal(t, tc.expectedNames, names)
		})
	}
}

func TestRoomGuestNameCollisionOnJoin(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-Bob", playableSettings(), nil)
	f.join(t, "Bob", false)
	second, _ := f.room.attach(&fakeConn{}, domain.Identity{Id: "g-1", Name: "Bob", IsGuest: true}, "")
	third, _ := f.room.attach(&fakeConn{}, domain.Identity{Id: "g-2", Name: "Bob", IsGuest: true}, "")

	assert.Equal(t, "Bob(1)", second.DisplayName)
	assert.Equal(t, "Bob(2)", third.DisplayName)
}

func TestRoomEligibilityIsFrozen(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", playableSettings(), nil)
	alice, _ := f.join(t, "alice", false)
	bob, bobConn := f.join(t, "bob", false)
	f.join(t, "carol", false)

	f.do(alice, StartGameCommand{})
	rd := f.room.currentRound()
	require.Len(t, rd.Eligible, 3)

	dave, daveConn := f.join(t, "dave", false)
	assert.Len(t, rd.Eligible, 3, "late joiners wait for the next round")
	assert.ErrorIs(t, rd.Submit(dave, nil), ErrNotEligible)
	assert.Equal(t, []string{EventGameUpdate, EventPlayerUpdate, EventRoundUpdate}, daveConn.events())

	f.room.detach(bob, bobConn)
	assert.False(t, bob.Active)
	f.join(t, "bob", false)
	assert.True(t, bob.Active)
	assert.Len(t, f.room.players, 4, "rejoining reuses the player")
	assert.Same(t, alice, rd.Judge)
	assert.Len(t, rd.Eligible, 3)
}

func TestRoomRejoinReplacesConnection(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", playableSettings(), nil)
	alice, oldConn := f.join(t, "alice", false)
	f.join(t, "bob", false)
	f.do(alice, StartGameCommand{})

	again, newConn := f.join(t, "alice", false)
	assert.Same(t, alice, again)

	closed, reason := oldConn.isClosed()
	assert.True(t, closed)
	assert.Equal(t, ErrReplaced.Code, reason)
	assert.Equal(t, []string{EventGameUpdate, EventPlayerUpdate, EventRoundUpdate}, newConn.events())

	var private PrivatePlayerView
	newConn.last(t, EventPlayerUpdate, &private)
	assert.Len(t, private.Hand, HandSize)
}

func TestRoomWelcomeRevealsOnlyWhileJudging(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", playableSettings(), nil)
	alice, _ := f.join(t, "alice", false)
	bob, _ := f.join(t, "bob", false)
	carol, _ := f.join(t, "carol", false)
	f.do(alice, StartGameCommand{})

	f.submitFirst(bob)
	_, early := f.join(t, "dave", false)
	var collecting RoundView
	early.last(t, EventRoundUpdate, &collecting)
	assert.Empty(t, collecting.Submissions)
	assert.Equal(t, []int{bob.ID}, collecting.Submitted)

	f.submitFirst(carol)
	require.Equal(t, PhaseJudging, f.room.phase)
	_, late := f.join(t, "erin", false)
	var judging RoundView
	late.last(t, EventRoundUpdate, &judging)
	assert.Len(t, judging.Submissions, 2)
}

func TestRoomInactivityKick(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", playableSettings(), nil)
	alice, _ := f.join(t, "alice", false)
	bob, _ := f.join(t, "bob", false)
	carol, carolConn := f.join(t, "carol", false)
	f.do(alice, StartGameCommand{})

	f.submitFirst(bob)
	f.tick(30 * time.Second)
	assert.Equal(t, PhaseCollecting, f.room.phase, "deadline not reached yet")

	f.tick(60 * time.Second)

	assert.False(t, carol.Active)
	closed, reason := carolConn.isClosed()
	assert.True(t, closed)
	assert.Equal(t, "inactivity", reason)
	assert.Contains(t, carolConn.notices(), notice{Message: "kicked for inactivity", Reason: "inactivity"})

	assert.Equal(t, PhaseRoundEnd, f.room.phase, "a lone submission wins without judging")
	assert.Equal(t, 1, bob.Score)

	f.tick(roundEndPause)
	rd := f.room.currentRound()
	assert.Equal(t, 2, rd.Number)
	assert.Equal(t, []*Player{alice, bob}, rd.Eligible)
	assert.Same(t, bob, rd.Judge)
	assert.Equal(t, 0, carol.Score)
}

func TestRoomJudgeTimeout(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", playableSettings(), nil)
	alice, aliceConn := f.join(t, "alice", false)
	bob, _ := f.join(t, "bob", false)
	carol, _ := f.join(t, "carol", false)
	f.do(alice, StartGameCommand{})

	f.submitFirst(bob)
	f.submitFirst(carol)
	require.Equal(t, PhaseJudging, f.room.phase)

	f.tick(judgingWindow)

	assert.False(t, alice.Active)
	assert.Contains(t, aliceConn.notices(), notice{Message: "kicked for inactivity", Reason: "inactivity"})
	assert.Equal(t, PhaseRoundEnd, f.room.phase)
	assert.Nil(t, f.room.currentRound().Winner)
	assert.Zero(t, bob.Score+carol.Score)
	assert.True(t, bob.IsHost, "host role moves on when the host is kicked")
}

func TestRoomJudgePickValidation(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", playableSettings(), nil)
	alice, _ := f.join(t, "alice", false)
	bob, bobConn := f.join(t, "bob", false)
	carol, _ := f.join(t, "carol", false)
	f.do(alice, StartGameCommand{})

	f.do(alice, JudgePickCommand{PlayerID: bob.ID})
	assert.Equal(t, ErrNoActiveRound.Code, lastNotice(t, f, alice).Reason)

	f.submitFirst(bob)
	f.submitFirst(carol)

	f.do(bob, JudgePickCommand{PlayerID: bob.ID})
	notices := bobConn.notices()
	assert.Equal(t, ErrNotJudge.Code, notices[len(notices)-1].Reason)

	f.do(alice, JudgePickCommand{PlayerID: 42})
	assert.Equal(t, ErrNoSuchSubmission.Code, lastNotice(t, f, alice).Reason)
	assert.Equal(t, PhaseJudging, f.room.phase)
}

func lastNotice(t *testing.T, f *roomFixture, p *Player) notice {
	t.Helper()
	conn, ok := p.conn.(*fakeConn)
	require.True(t, ok)
	notices := conn.notices()
	require.NotEmpty(t, notices)
	return notices[len(notices)-1]
}

func TestRoomScoreLimitEndsGame(t *testing.T) {
	t.Parallel()
	recorder := new(MockGameRecorder)
	settings := playableSettings()
	settings.ScoreLimit = 1
	f := newTestRoom(t, "u-alice", settings, recorder)

	alice, aliceConn := f.join(t, "alice", false)
	bob, _ := f.join(t, "bob", false)
	guest, _ := f.join(t, "guest", true)

	roomID := f.room.ID()
	recorder.On("SaveRoom", mock.Anything, roomID, epoch, mock.Anything).Return(nil).Once()
	recorder.On("RecordResult", mock.Anything, "u-alice", 0, false, roomID).Return(nil).Once()
	recorder.On("RecordResult", mock.Anything, "u-bob", 1, true, roomID).Return(nil).Once()

	f.do(alice, StartGameCommand{})
	f.submitFirst(bob)
	f.submitFirst(guest)
	f.do(alice, JudgePickCommand{PlayerID: bob.ID})
	f.tick(roundEndPause)

	recorder.AssertExpectations(t)

	var end GameEndView
	aliceConn.last(t, EventGameEnd, &end)
	assert.Equal(t, []int{bob.ID}, end.Winners)
	assert.Equal(t, 1, end.Rounds)

	assert.False(t, f.room.started)
	assert.Equal(t, PhaseLobby, f.room.phase)
	assert.False(t, f.room.closed, "the room stays open for another game")
	assert.Zero(t, bob.Score)
	assert.Empty(t, bob.Hand)

	call := recorder.Calls[0]
	var record map[string]any
	require.NoError(t, json.Unmarshal(call.Arguments.Get(3).([]byte), &record))
	assert.Equal(t, roomID, record["id"])
	assert.Len(t, record["rounds"], 1)
	assert.Len(t, record["players"], 3)
}

func TestRoomDestroyedWithoutEnoughPlayers(t *testing.T) {
	t.Parallel()
	recorder := new(MockGameRecorder)
	recorder.On("SaveRoom", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	recorder.On("RecordResult", mock.Anything, mock.Anything, mock.Anything, false, mock.Anything).Return(nil)

	f := newTestRoom(t, "u-alice", playableSettings(), recorder)
	alice, aliceConn := f.join(t, "alice", false)
	bob, _ := f.join(t, "bob", false)
	f.do(alice, StartGameCommand{})

	f.tick(f.room.settings.CollectingWindow())
	assert.False(t, bob.Active)
	assert.Equal(t, PhaseRoundEnd, f.room.phase)
	assert.Nil(t, f.room.currentRound().Winner)

	f.tick(roundEndPause)
	assert.True(t, f.room.closed)
	assert.Equal(t, []string{f.room.ID()}, f.registry.removedIDs())
	closed, reason := aliceConn.isClosed()
	assert.True(t, closed)
	assert.Equal(t, ErrNotEnoughPlayers.Code, reason)
	recorder.AssertNumberOfCalls(t, "SaveRoom", 1)
	recorder.AssertNumberOfCalls(t, "RecordResult", 2)
}

func TestRoomHostHandOff(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", playableSettings(), nil)
	alice, aliceConn := f.join(t, "alice", false)
	bob, _ := f.join(t, "bob", false)

	f.room.detach(alice, aliceConn)
	f.room.flush()
	assert.False(t, alice.IsHost)
	assert.True(t, bob.IsHost)
	assert.Same(t, bob, f.room.host)

	f.join(t, "alice", false)
	assert.True(t, bob.IsHost, "returning players do not take the host role back")
}

func TestRoomSpectatorsSitOut(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", playableSettings(), nil)
	alice, aliceConn := f.join(t, "alice", false)
	bob, _ := f.join(t, "bob", false)
	carol, _ := f.join(t, "carol", false)
	dave, _ := f.join(t, "dave", false)
	bob.IsSpectator = true

	f.do(alice, StartGameCommand{})
	rd := f.room.currentRound()
	require.NotNil(t, rd)
	assert.NotContains(t, rd.Eligible, bob)
	assert.Len(t, rd.Eligible, 3)
	assert.Empty(t, bob.Hand)
	assert.Len(t, carol.Hand, HandSize)

	f.room.detach(alice, aliceConn)
	f.room.flush()
	assert.False(t, bob.IsHost)
	assert.True(t, carol.IsHost)
	assert.False(t, dave.IsHost)
}

func TestRoomStaleDetachIgnored(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", playableSettings(), nil)
	alice, oldConn := f.join(t, "alice", false)
	f.join(t, "alice", false)

	f.room.detach(alice, oldConn)
	assert.True(t, alice.Active)
}

func TestRoomIdleLobbyDestroyed(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "", playableSettings(), nil)

	f.tick(5 * time.Minute)
	assert.False(t, f.room.closed)

	p, conn := f.join(t, "alice", false)
	f.tick(20 * time.Minute)
	assert.False(t, f.room.closed, "an occupied lobby never idles out")

	f.room.detach(p, conn)
	f.tick(time.Second)
	f.tick(lobbyIdleTimeout)
	assert.True(t, f.room.closed)
	assert.Equal(t, []string{f.room.ID()}, f.registry.removedIDs())
}

func TestRoomDeliveryFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", playableSettings(), nil)
	alice, _ := f.join(t, "alice", false)
	bob, bobConn := f.join(t, "bob", false)
	bobConn.fail = ErrSendBufferFull

	f.do(alice, StartGameCommand{})
	assert.True(t, f.room.started)
	assert.True(t, bob.Active, "a failed send leaves the player as is")
}

func TestRoomIgnoresForeignConnections(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", playableSettings(), nil)
	alice, _ := f.join(t, "alice", false)
	f.join(t, "bob", false)

	f.room.handleMessage(roomMessage{from: alice, conn: &fakeConn{}, cmd: StartGameCommand{}}, epoch)
	assert.False(t, f.room.started)
}

func TestRoomRunRecoversPanics(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", playableSettings(), nil)
	go f.room.Run(t.Context())

	aliceConn := &fakeConn{}
	_, err := f.room.Attach(t.Context(), aliceConn, domain.Identity{Id: "u-alice", Name: "alice"}, "")
	require.NoError(t, err)

	f.room.Attach(t.Context(), panickyConn{}, domain.Identity{Id: "u-bob", Name: "bob"}, "")

	select {
	case <-f.room.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("room loop did not exit")
	}

	assert.Equal(t, []string{f.room.ID()}, f.registry.removedIDs())
	assert.Contains(t, aliceConn.notices(), notice{Message: ErrRoomCrashed.Message, Reason: ErrRoomCrashed.Code})
	closed, _ := aliceConn.isClosed()
	assert.True(t, closed)

	_, err = f.room.Attach(t.Context(), &fakeConn{}, domain.Identity{Id: "u-carol", Name: "carol"}, "")
	assert.True(t, errors.Is(err, ErrRoomClosed))
}

func TestRoomRunShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	f := newTestRoom(t, "u-alice", playableSettings(), nil)
	ctx, cancel := context.WithCancel(t.Context())
	go f.room.Run(ctx)

	conn := &fakeConn{}
	_, err := f.room.Attach(ctx, conn, domain.Identity{Id: "u-alice", Name: "alice"}, "")
	require.NoError(t, err)

	cancel()
	<-f.room.Done()

	closed, reason := conn.isClosed()
	assert.True(t, closed)
	assert.Equal(t, ErrServerShutdown.Code, reason)
}
