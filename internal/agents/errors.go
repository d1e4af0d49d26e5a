package agents

import (
	"fmt"
	"strings"
)

// TransientError is an agent call failure that survived the retry budget.
type TransientError struct {
	Agent string
	Err   error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s agent call failed after retries: %v", e.Agent, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// ValidationError marks a structured agent response that failed schema
// checks. It is retried against the same agent like a transient failure.
type ValidationError struct {
	Agent  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s agent returned an invalid response: %s", e.Agent, e.Reason)
}

// ExecutionFailure means the execution agent ran but produced no repository
// change. Escalated to the human, never retried.
type ExecutionFailure struct {
	Summary string
	Issues  []string
}

func (e *ExecutionFailure) Error() string {
	msg := "execution produced no repository change"
	if strings.TrimSpace(e.Summary) != "" {
		msg += ": " + e.Summary
	}
	return msg
}
