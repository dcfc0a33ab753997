// Package ratelimit gates outbound PokeAPI requests with a token bucket.
// PokeAPI is a free community service with a fair-use policy; a single
// aggregate call can issue hundreds of detail requests, so every outbound
// request waits for a token first.
package ratelimit

import (
	"golang.org/x/time/rate"
)

// State is a point-in-time view of the limiter.
type State struct {
	// Limit is the sustained request rate in requests per second.
	// rate.Inf means unlimited.
	Limit float64 `json:"limit"`

	// Burst is the bucket size.
	Burst int `json:"burst"`

	// Tokens is the number of tokens currently available.
	Tokens float64 `json:"tokens"`
}

// Unlimited reports whether the limiter never blocks.
func (s State) Unlimited() bool {
	return s.Limit == float64(rate.Inf)
}

// IsThrottled returns true when the next request would have to wait.
func (s State) IsThrottled() bool {
	return !s.Unlimited() && s.Tokens < 1
}
