package scheduler

import (
	"fmt"
	"strings"
)

// State is the cycle state of one region.
type State int32

const (
	// Idle means no cycle is running.
	Idle State = iota
	// Running means a cycle is running and has seen every trigger so far.
	Running
	// RunningStale means a trigger arrived after the running cycle started;
	// one follow-up cycle will run when it completes.
	RunningStale
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case RunningStale:
		return "running_stale"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// RetryPolicy decides whether a timed-out cycle is retried.
type RetryPolicy int

const (
	// RetryIfCurrent retries only when no newer cycle has started.
	RetryIfCurrent RetryPolicy = iota
	// RetryAlways retries every timeout, up to the retry limit.
	RetryAlways
	// RetryNever never retries.
	RetryNever
)

func (p RetryPolicy) String() string {
	switch p {
	case RetryIfCurrent:
		return "if-current"
	case RetryAlways:
		return "always"
	case RetryNever:
		return "never"
	default:
		return fmt.Sprintf("RetryPolicy(%d)", int(p))
	}
}

// ParseRetryPolicy parses a policy name. The empty string means
// RetryIfCurrent.
func ParseRetryPolicy(s string) (RetryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "if-current":
		return RetryIfCurrent, nil
	case "always":
		return RetryAlways, nil
	case "never":
		return RetryNever, nil
	default:
		return 0, fmt.Errorf("unknown retry policy %q (want if-current, always or never)", s)
	}
}
