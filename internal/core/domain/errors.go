package domain

import "errors"

var (
	// ErrProviderUnavailable means the completion provider cannot be
	// reached at all (no credentials, no endpoint). This is the one
	// failure that aborts an entire run.
	ErrProviderUnavailable = errors.New("llm provider unavailable")

	// ErrToolNotFound is returned when a tool name has no registration.
	ErrToolNotFound = errors.New("tool not found")

	// ErrPromptNotFound is returned when a required named prompt is
	// missing from the prompt source.
	ErrPromptNotFound = errors.New("prompt not found")

	// ErrThreadNotFound is returned for lookups on unknown threads.
	ErrThreadNotFound = errors.New("thread not found")
)
