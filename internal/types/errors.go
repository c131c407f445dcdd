package types

import "errors"

// Error kinds from spec §7. Every engine and fsops function that can fail
// wraps one of these with call-site context via %w, so callers can match
// with errors.Is regardless of the wrapping.
var (
	ErrNoSpace         = errors.New("bpram: no space left on device")
	ErrNotFound        = errors.New("bpram: no such entry")
	ErrExists          = errors.New("bpram: entry already exists")
	ErrNotEmpty        = errors.New("bpram: directory not empty")
	ErrNameTooLong     = errors.New("bpram: name too long")
	ErrLinkMax         = errors.New("bpram: too many links")
	ErrInvalidArgument = errors.New("bpram: invalid argument")

	// ErrCorrupt marks a fatal (assertion) condition: bitmap double-free,
	// access to block 0, a directory inode with nlinks < 2, or recursion
	// past the maximum tree height. These are not recovered at this layer
	// (spec §7).
	ErrCorrupt = errors.New("bpram: on-media invariant violated")
)
