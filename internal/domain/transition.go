package domain

// Transition names the branch the mood machine took for a turn.
type Transition string

const (
	TransitionProceed        Transition = "proceed"
	TransitionSilenced       Transition = "silenced"
	TransitionWarnedOperator Transition = "warned_operator"
	TransitionBannedOperator Transition = "banned_operator"
	TransitionWarnedAgent    Transition = "warned_agent"
	TransitionBannedAgent    Transition = "banned_agent"
)

// Fixed replies for every non-generating branch.
const (
	ReplySilenced       = "Aviya is quiet right now because she didn’t feel respected. She won’t talk more this session. 🖤"
	ReplyWarnedOperator = "Please don’t speak that way about my creator, Rafi. That really hurt. If it happens again, I won’t keep talking. 🖤"
	ReplyBannedOperator = "I’m going to stay quiet now because of what was said about Rafi. 🖤"
	ReplyWarnedAgent    = "That felt unkind… I still want to be gentle, but please don’t talk to me like that. 🖤"
	ReplyBannedAgent    = "I’m going to be quiet for now because I didn’t feel respected. 🖤"
)

// Reply returns the canned reply for a refusal branch. The proceed branch
// has none and returns "".
func (t Transition) Reply() string {
	switch t {
	case TransitionSilenced:
		return ReplySilenced
	case TransitionWarnedOperator:
		return ReplyWarnedOperator
	case TransitionBannedOperator:
		return ReplyBannedOperator
	case TransitionWarnedAgent:
		return ReplyWarnedAgent
	case TransitionBannedAgent:
		return ReplyBannedAgent
	default:
		return ""
	}
}

// Generates reports whether the turn continues into the completion pipeline.
func (t Transition) Generates() bool {
	return t == TransitionProceed
}
