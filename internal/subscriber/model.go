package subscriber

import "time"

// State describes a subscriber's relationship with the bot.
type State string

const (
	// StateActive means the subscriber can currently receive messages.
	StateActive State = "member"
	// StateKicked means the subscriber blocked the bot or removed it; delivery
	// to them is rejected by the platform until they re-engage.
	StateKicked State = "kicked"
)

// Subscriber is one addressable broadcast target.
//
// ID is immutable once the record is created. Display attributes (FullName,
// Username, LanguageCode) are refreshed on every observed interaction. State
// only changes through explicit Store updates: the dispatch engine flips it to
// kicked on a permanent rejection, and the update intake flips it back to
// member when the user re-engages.
type Subscriber struct {
	ID           int64
	FullName     string
	Username     string
	LanguageCode string
	State        State
	SubscribedAt time.Time
}

// Active reports whether the subscriber is currently reachable.
func (s Subscriber) Active() bool { return s.State == StateActive }
