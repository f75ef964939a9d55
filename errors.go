package aec

import "errors"

// Sentinel errors for the taxonomy in spec §7. Wrapped with fmt.Errorf
// and "%w" at the call site so errors.Is keeps working for callers.
var (
	// ErrConfiguration covers invalid construction parameters: reported
	// synchronously at construction and fatal to the session.
	ErrConfiguration = errors.New("aec: invalid configuration")

	// ErrBlockSizeMismatch means mic/ref lengths disagree with the
	// configured block size N. Not fatal: the core returns silence for
	// the block and surfaces the error on the metrics channel.
	ErrBlockSizeMismatch = errors.New("aec: block size mismatch")

	// ErrNonFiniteInput means a NaN/Inf sample was found in mic or ref.
	// Not fatal: affected output samples are zeroed and adaptation is
	// forced off for that block.
	ErrNonFiniteInput = errors.New("aec: non-finite input sample")

	// ErrRateMismatch means the sample rate changed under the core.
	// Fatal: requires external re-initialization.
	ErrRateMismatch = errors.New("aec: sample rate mismatch")
)
