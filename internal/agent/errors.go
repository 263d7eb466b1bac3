package agent

import "errors"

// Sentinel errors for loop construction and operation.
var (
	// ErrNoProvider indicates no LLM provider is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrNoSessionStore indicates no session store is configured.
	ErrNoSessionStore = errors.New("no session store configured")

	// ErrNoBus indicates a bus-driven operation was requested without a bus.
	ErrNoBus = errors.New("no message bus configured")
)
