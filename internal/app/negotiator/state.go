package negotiator

// State is the negotiation phase of one session.
type State int32

const (
	Idle State = iota
	OfferSent
	OfferReceived
	AnswerSent
	AnswerReceived
	Connected
	Closed
	Failed
)

var stateNames = [...]string{
	Idle:           "idle",
	OfferSent:      "offer_sent",
	OfferReceived:  "offer_received",
	AnswerSent:     "answer_sent",
	AnswerReceived: "answer_received",
	Connected:      "connected",
	Closed:         "closed",
	Failed:         "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal states absorb every further message.
func (s State) Terminal() bool {
	return s == Closed || s == Failed
}

// Transition is reported to observers after the state lock is released.
type Transition struct {
	From State
	To   State
}
