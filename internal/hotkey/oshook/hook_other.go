//go:build !windows && !linux && !darwin

package oshook

import "github.com/snarg/dictation/internal/hotkey"

// New returns nil: there is no keyboard integration for this platform, so
// installing the hook reports hotkey.ErrUnsupported.
func New() hotkey.Platform { return nil }
