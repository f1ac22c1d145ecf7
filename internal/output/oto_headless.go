//go:build headless

package output

import (
	"errors"
	"time"
)

// Oto is unavailable in headless builds.
type Oto = Headless

// NewOto fails in headless builds.
func NewOto(sampleRate int, latency time.Duration) (*Oto, error) {
	return nil, errors.New("system audio output not compiled in (built with -tags headless)")
}
