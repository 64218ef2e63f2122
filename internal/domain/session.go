package domain

import (
	"strings"
	"time"
)

// TranscriptLimit is the number of transcript lines a session retains.
const TranscriptLimit = 30

// Mood is the moderation state of a session.
type Mood string

const (
	MoodNormal Mood = "normal"
	MoodHurt   Mood = "hurt"
	MoodOff    Mood = "off"
)

// Speaker labels used when rendering transcript and memory lines.
const (
	UserLabel  = "User"
	AgentLabel = "Aviya"
)

// Verdict is the outcome of keyword moderation for one message.
type Verdict struct {
	MentionsOperator     bool
	MentionsAgent        bool
	HasDisrespectfulWord bool
}

// DisrespectsOperator reports disrespect aimed at the operator.
func (v Verdict) DisrespectsOperator() bool {
	return v.MentionsOperator && v.HasDisrespectfulWord
}

// DisrespectsAgent reports disrespect aimed at the agent.
func (v Verdict) DisrespectsAgent() bool {
	return v.MentionsAgent && v.HasDisrespectfulWord
}

// Session is the ephemeral per-conversation state keyed by a client session id.
// It is a value type: stores hand out copies and callers write them back.
type Session struct {
	Transcript     []string  `json:"transcript"`
	Mood           Mood      `json:"mood"`
	WarnedOperator bool      `json:"warned_operator"`
	WarnedAgent    bool      `json:"warned_agent"`
	Banned         bool      `json:"banned"`
	Greeted        bool      `json:"greeted"`
	CreatedAt      time.Time `json:"created_at"`
	LastActiveAt   time.Time `json:"last_active_at"`
}

// NewSession returns a fresh session in the normal mood.
func NewSession(now time.Time) Session {
	return Session{
		Mood:         MoodNormal,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Silenced reports whether the session refuses all further generation.
func (s *Session) Silenced() bool {
	return s.Banned || s.Mood == MoodOff
}

// Moderate applies one turn's verdict to the mood machine. Rules are checked
// in priority order and the first match wins; warned flags are set-once.
func (s *Session) Moderate(v Verdict) Transition {
	switch {
	case s.Silenced():
		return TransitionSilenced
	case v.DisrespectsOperator():
		if !s.WarnedOperator {
			s.WarnedOperator = true
			s.Mood = MoodHurt
			return TransitionWarnedOperator
		}
		s.Banned = true
		s.Mood = MoodOff
		return TransitionBannedOperator
	case v.DisrespectsAgent():
		if !s.WarnedAgent {
			s.WarnedAgent = true
			s.Mood = MoodHurt
			return TransitionWarnedAgent
		}
		s.Banned = true
		s.Mood = MoodOff
		return TransitionBannedAgent
	default:
		return TransitionProceed
	}
}

// SettleMood lets a hurt session recover after a generated reply, but only
// when the turn carried no disrespectful keyword at all.
func (s *Session) SettleMood(v Verdict) {
	if s.Mood == MoodHurt && !v.HasDisrespectfulWord {
		s.Mood = MoodNormal
	}
}

// AppendTurn records a user message and the agent reply, then trims the
// transcript to the last TranscriptLimit lines.
func (s *Session) AppendTurn(message, reply string) {
	lines := strings.Split(UserLabel+": "+message+"\n"+AgentLabel+": "+reply, "\n")
	s.Transcript = TrimLines(append(s.Transcript, lines...), TranscriptLimit)
}

// Touch records request receipt.
func (s *Session) Touch(now time.Time) {
	s.LastActiveAt = now
}

// TrimLines returns the last n lines, copying so the result never aliases a
// larger backing array.
func TrimLines(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	out := make([]string, n)
	copy(out, lines[len(lines)-n:])
	return out
}
