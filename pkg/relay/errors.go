// Copyright 2024-2026 Aiku AI

package relay

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError is a platform backpressure signal carrying the wait the
// platform asked for.
type RateLimitError struct {
	Wait time.Duration
	Err  error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited for %s: %v", e.Wait, e.Err)
	}
	return fmt.Sprintf("rate limited for %s", e.Wait)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// ResolutionError means a reference could not be mapped to a channel.
type ResolutionError struct {
	Ref ChannelRef
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve %q: %v", string(e.Ref), e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// AsRateLimit extracts a RateLimitError from err.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
