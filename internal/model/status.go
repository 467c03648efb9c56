package model

type Status string

const (
	Pending    Status = "pending"
	Processing Status = "processing"
	Sent       Status = "sent"
	Failed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case Pending, Processing, Sent, Failed:
		return true
	}
	return false
}

// CanTransitionTo encodes pending -> processing -> {sent, failed}.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case Pending:
		return next == Processing
	case Processing:
		return next == Sent || next == Failed
	}
	return false
}

// Predecessor returns the only status allowed to move into next.
func Predecessor(next Status) (Status, bool) {
	if !next.Valid() {
		return "", false
	}
	for _, s := range []Status{Pending, Processing, Sent, Failed} {
		if s.CanTransitionTo(next) {
			return s, true
		}
	}
	return "", false
}
