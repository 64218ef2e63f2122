package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	operatorInsult = Verdict{MentionsOperator: true, HasDisrespectfulWord: true}
	agentInsult    = Verdict{MentionsAgent: true, HasDisrespectfulWord: true}
	clean          = Verdict{}
)

func TestModerate_OperatorWarnThenBan(t *testing.T) {
	s := NewSession(time.Now())

	tr := s.Moderate(operatorInsult)
	assert.Equal(t, TransitionWarnedOperator, tr)
	assert.Equal(t, MoodHurt, s.Mood)
	assert.True(t, s.WarnedOperator)
	assert.False(t, s.Banned)

	tr = s.Moderate(operatorInsult)
	assert.Equal(t, TransitionBannedOperator, tr)
	assert.Equal(t, MoodOff, s.Mood)
	assert.True(t, s.Banned)

	tr = s.Moderate(operatorInsult)
	assert.Equal(t, TransitionSilenced, tr)
	assert.Equal(t, ReplySilenced, tr.Reply())
}

func TestModerate_AgentWarnThenBan(t *testing.T) {
	s := NewSession(time.Now())

	assert.Equal(t, TransitionWarnedAgent, s.Moderate(agentInsult))
	assert.True(t, s.WarnedAgent)
	assert.False(t, s.WarnedOperator)
	assert.Equal(t, MoodHurt, s.Mood)

	assert.Equal(t, TransitionBannedAgent, s.Moderate(agentInsult))
	assert.True(t, s.Banned)
	assert.Equal(t, MoodOff, s.Mood)
}

func TestModerate_OperatorTakesPriorityOverAgent(t *testing.T) {
	s := NewSession(time.Now())
	both := Verdict{MentionsOperator: true, MentionsAgent: true, HasDisrespectfulWord: true}

	assert.Equal(t, TransitionWarnedOperator, s.Moderate(both))
	assert.False(t, s.WarnedAgent)
}

func TestModerate_BannedSessionIsInert(t *testing.T) {
	s := NewSession(time.Now())
	s.Moderate(agentInsult)
	s.Moderate(agentInsult)
	before := s

	for _, v := range []Verdict{clean, operatorInsult, agentInsult} {
		assert.Equal(t, TransitionSilenced, s.Moderate(v))
		s.SettleMood(v)
	}
	assert.Equal(t, before, s)
}

func TestModerate_MoodOffWithoutBanIsSilenced(t *testing.T) {
	s := NewSession(time.Now())
	s.Mood = MoodOff
	assert.Equal(t, TransitionSilenced, s.Moderate(clean))
}

func TestModerate_WarnedFlagsSurviveMoodReset(t *testing.T) {
	s := NewSession(time.Now())
	s.Moderate(operatorInsult)
	s.SettleMood(clean)
	require.Equal(t, MoodNormal, s.Mood)
	require.True(t, s.WarnedOperator)

	assert.Equal(t, TransitionBannedOperator, s.Moderate(operatorInsult))
}

func TestSettleMood(t *testing.T) {
	tests := []struct {
		name    string
		verdict Verdict
		want    Mood
	}{
		{"clean turn recovers", clean, MoodNormal},
		{"bad word without mention stays hurt", Verdict{HasDisrespectfulWord: true}, MoodHurt},
		{"other kind of disrespect stays hurt", agentInsult, MoodHurt},
		{"mention without bad word recovers", Verdict{MentionsOperator: true}, MoodNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(time.Now())
			s.Mood = MoodHurt
			s.SettleMood(tt.verdict)
			assert.Equal(t, tt.want, s.Mood)
		})
	}
}

func TestSettleMood_NormalStaysNormal(t *testing.T) {
	s := NewSession(time.Now())
	s.SettleMood(Verdict{HasDisrespectfulWord: true})
	assert.Equal(t, MoodNormal, s.Mood)
}

func TestAppendTurn_TrimsToLimit(t *testing.T) {
	s := NewSession(time.Now())
	for i := 0; i < 50; i++ {
		s.AppendTurn(fmt.Sprintf("message %d", i), fmt.Sprintf("reply %d", i))
		require.LessOrEqual(t, len(s.Transcript), TranscriptLimit)
	}

	require.Len(t, s.Transcript, TranscriptLimit)
	assert.Equal(t, "Aviya: reply 49", s.Transcript[len(s.Transcript)-1])
	assert.Equal(t, "User: message 35", s.Transcript[0])
}

func TestAppendTurn_MultilineMessagesCountPerLine(t *testing.T) {
	s := NewSession(time.Now())
	s.AppendTurn("line one\nline two", "ok")

	assert.Equal(t, []string{"User: line one", "line two", "Aviya: ok"}, s.Transcript)
}

func TestTrimLines_Idempotent(t *testing.T) {
	lines := make([]string, 45)
	for i := range lines {
		lines[i] = fmt.Sprint(i)
	}
	once := TrimLines(lines, TranscriptLimit)
	twice := TrimLines(once, TranscriptLimit)
	assert.Equal(t, once, twice)
	assert.Len(t, twice, TranscriptLimit)
}

func TestTransitionReply(t *testing.T) {
	assert.Empty(t, TransitionProceed.Reply())
	assert.True(t, TransitionProceed.Generates())
	assert.False(t, TransitionWarnedAgent.Generates())
	assert.Equal(t, ReplyBannedAgent, TransitionBannedAgent.Reply())
}

func TestLoginSessionExpired(t *testing.T) {
	now := time.Now()
	ls := LoginSession{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, ls.Expired(now))
	assert.True(t, ls.Expired(now.Add(time.Minute)))
}

func TestIdentityMatchesEmail(t *testing.T) {
	id := Identity{Email: "Rafi@Example.com"}
	assert.True(t, id.MatchesEmail("rafi@example.com"))
	assert.False(t, id.MatchesEmail(""))
	assert.False(t, (&Identity{}).MatchesEmail(""))
}
