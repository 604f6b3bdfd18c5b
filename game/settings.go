package game

import (
	"encoding/json"
	"math"
	"slices"
	"strings"
	"time"
)

const (
	DefaultScoreLimit   = 8
	DefaultTimerMinutes = 1.5
	MinScoreLimit       = 1
	MinTimerMinutes     = 0.25
)

// Settings are the host controlled knobs of a room. A PlayerLimit of 0 means
// no limit and an empty Password means the room is open.
type Settings struct {
	ScoreLimit    int
	TimerMinutes  float64
	PlayerLimit   int
	Password      string
	ShowPassword  bool
	DeckIDs       []string
	CustomDeckIDs []string
	AllowGuests   bool
}

func DefaultSettings() Settings {
	return Settings{
		ScoreLimit:   DefaultScoreLimit,
		TimerMinutes: DefaultTimerMinutes,
		AllowGuests:  true,
	}
}

// CollectingWindow is how long players get to submit their cards. Timers too
// long for a time.Duration saturate.
func (s Settings) CollectingWindow() time.Duration {
	window := s.TimerMinutes * float64(time.Minute)
	if window >= math.MaxInt64 {
		return math.MaxInt64
	}
	return time.Duration(window)
}

// Decks returns the selected deck ids, official packs first, without
// duplicates.
func (s Settings) Decks() []string {
	ids := make([]string, 0, len(s.DeckIDs)+len(s.CustomDeckIDs))
	for _, id := range slices.Concat(s.DeckIDs, s.CustomDeckIDs) {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

type LimitPatch struct {
	Enabled bool
	Value   int
}

type PasswordPatch struct {
	Enabled bool
	Value   string
	Show    bool
}

// SettingsPatch holds the fields of a settings update that had the right
// JSON shape. A nil field was absent or unreadable and is left alone.
type SettingsPatch struct {
	ScoreLimit  *int
	TimerLimit  *float64
	PlayerLimit *LimitPatch
	Password    *PasswordPatch
	GamePacks   *[]string
	CustomPacks *string
	AllowGuests *bool
}

// DecodeSettingsPatch reads an UPDATE_SETTINGS payload. Each field is decoded
// on its own so one bad field never spoils the rest. Only a payload that is
// not an object at all is an error.
func DecodeSettingsPatch(data json.RawMessage) (SettingsPatch, error) {
	var patch SettingsPatch
	if len(data) == 0 || string(data) == "null" {
		return patch, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return patch, ErrMalformedPayload
	}

	if raw, ok := fields["score_limit"]; ok {
		if n, ok := decodeInt(raw); ok {
			patch.ScoreLimit = &n
		}
	}

	if raw, ok := fields["timer_limit"]; ok {
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			patch.TimerLimit = &f
		}
	}

	if raw, ok := fields["player_limit"]; ok {
		var parts []json.RawMessage
		if err := json.Unmarshal(raw, &parts); err == nil && len(parts) >= 2 {
			var limit LimitPatch
			n, ok := decodeInt(parts[1])
			if json.Unmarshal(parts[0], &limit.Enabled) == nil && (ok || !limit.Enabled) {
				limit.Value = n
				patch.PlayerLimit = &limit
			}
		}
	}

	if raw, ok := fields["password"]; ok {
		var parts []json.RawMessage
		if err := json.Unmarshal(raw, &parts); err == nil && len(parts) >= 1 {
			var pw PasswordPatch
			valid := json.Unmarshal(parts[0], &pw.Enabled) == nil
			if len(parts) >= 2 && json.Unmarshal(parts[1], &pw.Value) != nil && pw.Enabled {
				valid = false
			}
			if len(parts) >= 3 {
				json.Unmarshal(parts[2], &pw.Show)
			}
			if valid {
				patch.Password = &pw
			}
		}
	}

	if raw, ok := fields["gamepacks"]; ok {
		var ids []string
		if err := json.Unmarshal(raw, &ids); err == nil {
			patch.GamePacks = &ids
		}
	}

	if raw, ok := fields["custompacks"]; ok {
		var csv string
		if err := json.Unmarshal(raw, &csv); err == nil {
			patch.CustomPacks = &csv
		}
	}

	if raw, ok := fields["allow_guests"]; ok {
		var allow bool
		if err := json.Unmarshal(raw, &allow); err == nil {
			patch.AllowGuests = &allow
		}
	}

	return patch, nil
}

// Apply copies every valid field of the patch into s and drops the invalid
// ones. known filters deck ids. It reports whether anything changed.
func (s *Settings) Apply(patch SettingsPatch, known func(id string) bool) bool {
	before := s.clone()

	if patch.ScoreLimit != nil && *patch.ScoreLimit >= MinScoreLimit {
		s.ScoreLimit = *patch.ScoreLimit
	}

	if t := patch.TimerLimit; t != nil && !math.IsNaN(*t) && !math.IsInf(*t, 1) && *t >= MinTimerMinutes {
		s.TimerMinutes = *t
	}

	if l := patch.PlayerLimit; l != nil {
		switch {
		case !l.Enabled:
			s.PlayerLimit = 0
		case l.Value >= 1:
			s.PlayerLimit = l.Value
		}
	}

	if pw := patch.Password; pw != nil {
		switch {
		case !pw.Enabled:
			s.Password = ""
			s.ShowPassword = false
		case pw.Value != "":
			s.Password = pw.Value
			s.ShowPassword = pw.Show
		}
	}

	if patch.GamePacks != nil {
		s.DeckIDs = filterDeckIDs(*patch.GamePacks, known)
	}

	if patch.CustomPacks != nil {
		s.CustomDeckIDs = filterDeckIDs(strings.Split(*patch.CustomPacks, ","), known)
	}

	if patch.AllowGuests != nil {
		s.AllowGuests = *patch.AllowGuests
	}

	return !before.equal(*s)
}

func filterDeckIDs(ids []string, known func(id string) bool) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) || (known != nil && !known(id)) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (s Settings) clone() Settings {
	s.DeckIDs = slices.Clone(s.DeckIDs)
	s.CustomDeckIDs = slices.Clone(s.CustomDeckIDs)
	return s
}

func (s Settings) equal(o Settings) bool {
	return s.ScoreLimit == o.ScoreLimit &&
		s.TimerMinutes == o.TimerMinutes &&
		s.PlayerLimit == o.PlayerLimit &&
		s.Password == o.Password &&
		s.ShowPassword == o.ShowPassword &&
		s.AllowGuests == o.AllowGuests &&
		slices.Equal(s.DeckIDs, o.DeckIDs) &&
		slices.Equal(s.CustomDeckIDs, o.CustomDeckIDs)
}

type SettingsView struct {
	ScoreLimit  int      `json:"score_limit"`
	TimerLimit  float64  `json:"timer_limit"`
	PlayerLimit []any    `json:"player_limit"`
	Password    []any    `json:"password"`
	GamePacks   []string `json:"gamepacks"`
	CustomPacks string   `json:"custompacks"`
	AllowGuests bool     `json:"allow_guests"`
}

// view renders the settings in the same shapes UPDATE_SETTINGS accepts. The
// password itself is only included for the host or when the host chose to
// show it.
func (s Settings) view(revealPassword bool) SettingsView {
	password := ""
	if revealPassword || s.ShowPassword {
		password = s.Password
	}
	return SettingsView{
		ScoreLimit:  s.ScoreLimit,
		TimerLimit:  s.TimerMinutes,
		PlayerLimit: []any{s.PlayerLimit > 0, s.PlayerLimit},
		Password:    []any{s.Password != "", password, s.ShowPassword},
		GamePacks:   slices.Clone(s.DeckIDs),
		CustomPacks: strings.Join(s.CustomDeckIDs, ","),
		AllowGuests: s.AllowGuests,
	}
}
