// Package retry runs actions repeatedly until they succeed or one of a set of
// strategies gives up.
package retry

// Action is a function to be performed in a retriable manner.
type Action func() error

// Retrier binds a fixed set of strategies for repeated use.
type Retrier struct {
	strategies []Strategy
}

// NewRetrier returns a Retrier using strategies. Without any strategy the
// action is retried in a tight loop until it succeeds.
func NewRetrier(strategies ...Strategy) *Retrier {
	return &Retrier{strategies: strategies}
}

// Retry runs action with the bound strategies, followed by any extra ones.
func (r *Retrier) Retry(action Action, extra ...Strategy) (uint, error) {
	if len(extra) == 0 {
		return Retry(action, r.strategies...)
	}

	strategies := make([]Strategy, 0, len(r.strategies)+len(extra))
	strategies = append(strategies, r.strategies...)
	strategies = append(strategies, extra...)
	return Retry(action, strategies...)
}

// Retry runs action until it returns nil or a strategy vetoes another attempt,
// and reports the number of attempts made.
//
// Strategies are consulted in order and evaluation stops at the first veto,
// so strategies that sleep belong last.
func Retry(action Action, strategies ...Strategy) (uint, error) {
	var attempts uint
	for {
		attempts++

		err := action()
		if err == nil {
			return attempts, nil
		}
		if !allow(strategies, attempts, err) {
			return attempts, err
		}
	}
}

// Loop runs action forever until a strategy vetoes a failed attempt. The
// attempt count restarts after every success.
func Loop(action Action, strategies ...Strategy) error {
	var attempts uint
	for {
		attempts++

		err := action()
		if err == nil {
			attempts = 0
			continue
		}
		if !allow(strategies, attempts, err) {
			return err
		}
	}
}

func allow(strategies []Strategy, attempts uint, err error) bool {
	for _, s := range strategies {
		if !s(attempts, err) {
			return false
		}
	}
	return true
}
