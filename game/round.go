package game

import (
	"haters/cards"
	"slices"
	"time"
)

type Submission struct {
	Player *Player
	Cards  []cards.Card
}

// Round is one deal, submit and judge cycle. Eligible is frozen when the
// round starts; players joining or returning later wait for the next round.
type Round struct {
	Number      int
	Prompt      cards.Card
	Judge       *Player
	Eligible    []*Player
	Submissions map[int]*Submission
	StartedAt   time.Time

	Winner            *Player
	WinningSubmission []cards.Card

	order  []int
	scored bool
}

func newRound(number int, eligible []*Player, judge *Player, now time.Time) *Round {
	return &Round{
		Number:      number,
		Judge:       judge,
		Eligible:    slices.Clone(eligible),
		Submissions: make(map[int]*Submission, len(eligible)),
		StartedAt:   now,
	}
}

func (rd *Round) isEligible(p *Player) bool {
	return slices.Contains(rd.Eligible, p)
}

func (rd *Round) Submit(p *Player, picks []CardPick) error {
	if !rd.isEligible(p) {
		return ErrNotEligible
	}
	if p == rd.Judge {
		return ErrJudgeCannotSubmit
	}
	if _, ok := rd.Submissions[p.ID]; ok {
		return ErrAlreadySubmitted
	}
	if len(picks) != rd.Prompt.Blanks() {
		return ErrWrongCardCount
	}

	picked, err := p.takeCards(picks)
	if err != nil {
		return err
	}

	rd.Submissions[p.ID] = &Submission{Player: p, Cards: picked}
	rd.order = append(rd.order, p.ID)
	p.Submission = picked
	return nil
}

func (rd *Round) JudgePick(judge *Player, playerID int) error {
	if judge != rd.Judge {
		return ErrNotJudge
	}
	if rd.Winner != nil {
		return ErrAlreadyDecided
	}
	sub, ok := rd.Submissions[playerID]
	if !ok {
		return ErrNoSuchSubmission
	}
	rd.Winner = sub.Player
	rd.WinningSubmission = sub.Cards
	return nil
}

// awaiting lists the eligible players the round is still waiting on.
func (rd *Round) awaiting() []*Player {
	var waiting []*Player
	for _, p := range rd.Eligible {
		if p == rd.Judge {
			continue
		}
		if _, ok := rd.Submissions[p.ID]; !ok {
			waiting = append(waiting, p)
		}
	}
	return waiting
}

func (rd *Round) allSubmitted() bool {
	return len(rd.awaiting()) == 0
}

// autoResolve declares the only submission the winner.
func (rd *Round) autoResolve() bool {
	if rd.Winner != nil || len(rd.Submissions) != 1 {
		return false
	}
	sub := rd.Submissions[rd.order[0]]
	rd.Winner = sub.Player
	rd.WinningSubmission = sub.Cards
	return true
}

// award gives the winner their point. It is a no-op without a winner and
// after the first call.
func (rd *Round) award() bool {
	if rd.Winner == nil || rd.scored {
		return false
	}
	rd.Winner.Score++
	rd.scored = true
	return true
}

type SubmissionView struct {
	PlayerID int          `json:"player"`
	Cards    []cards.Card `json:"cards"`
}

type RoundView struct {
	Number            int              `json:"number"`
	Phase             Phase            `json:"phase"`
	Prompt            *cards.Card      `json:"prompt,omitempty"`
	Judge             int              `json:"judge"`
	Eligible          []int            `json:"eligible"`
	Submitted         []int            `json:"submitted"`
	Submissions       []SubmissionView `json:"submissions,omitempty"`
	Winner            *int             `json:"winner,omitempty"`
	WinningSubmission []cards.Card     `json:"winning_submission,omitempty"`
	Deadline          int64            `json:"deadline,omitempty"`
}

// view renders the round. Submitted cards are only included when reveal is
// set; before that clients only learn who has played.
func (rd *Round) view(phase Phase, deadline time.Time, reveal bool) RoundView {
	v := RoundView{
		Number:    rd.Number,
		Phase:     phase,
		Judge:     rd.Judge.ID,
		Eligible:  make([]int, 0, len(rd.Eligible)),
		Submitted: slices.Clone(rd.order),
	}
	if v.Submitted == nil {
		v.Submitted = []int{}
	}
	if rd.Prompt.Text != "" {
		prompt := rd.Prompt
		v.Prompt = &prompt
	}
	for _, p := range rd.Eligible {
		v.Eligible = append(v.Eligible, p.ID)
	}
	if !deadline.IsZero() {
		v.Deadline = deadline.UnixMilli()
	}
	if reveal {
		v.Submissions = make([]SubmissionView, 0, len(rd.order))
		for _, id := range rd.order {
			v.Submissions = append(v.Submissions, SubmissionView{PlayerID: id, Cards: rd.Submissions[id].Cards})
		}
		if rd.Winner != nil {
			id := rd.Winner.ID
			v.Winner = &id
			v.WinningSubmission = rd.WinningSubmission
		}
	}
	return v
}
