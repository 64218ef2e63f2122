// Package moderation classifies messages for disrespect toward the agent or
// its operator using plain substring matching.
package moderation

import (
	"strings"

	"github.com/ashureev/aviya/internal/domain"
)

// OperatorNames are substrings that refer to the operator.
var OperatorNames = []string{"rafi", "amaan", "amaan rafi"}

// AgentNames are substrings that refer to the agent.
var AgentNames = []string{"viya"}

// DisrespectfulWords is matched as raw substrings, so "f " also hits the end
// of words like "if ". That is accepted heuristic behaviour.
var DisrespectfulWords = []string{
	"fuck",
	"f ",
	"f-",
	"bitch",
	"stupid",
	"dumb",
	"idiot",
	"ugly",
	"hate",
	"shut up",
	"trash",
}

// Detect lower-cases the message and reports which keyword sets it contains.
func Detect(message string) domain.Verdict {
	lower := strings.ToLower(message)
	return domain.Verdict{
		MentionsOperator:     containsAny(lower, OperatorNames),
		MentionsAgent:        containsAny(lower, AgentNames),
		HasDisrespectfulWord: containsAny(lower, DisrespectfulWords),
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
