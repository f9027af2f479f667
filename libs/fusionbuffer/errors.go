package fusionbuffer

import "errors"

var (
	// ErrModeUnsupported is returned by NewAdaptive when constructed with a
	// Mode other than Single; Batch and Match are parameter-plumbing only.
	ErrModeUnsupported = errors.New("fusionbuffer: mode not yet implemented")
)
