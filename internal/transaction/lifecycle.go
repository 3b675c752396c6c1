package transaction

// transitions lists every allowed status change. Anything not listed is refused.
var transitions = map[Status][]Status{
	StatusPending:  {StatusVerified, StatusRejected, StatusFailed},
	StatusVerified: {StatusCompleted},
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}

	return false
}

// checkTransition validates a move of t to the target state. Completion also
// requires that the transaction has never been credited.
func checkTransition(t *Transaction, to Status) error {
	if !CanTransition(t.Status, to) || (to == StatusCompleted && t.Credited) {
		return &TransitionError{ID: t.ID, From: t.Status, To: to, Credited: t.Credited}
	}

	return nil
}
