//go:build !linux && !windows

package window

import "errors"

// NewLocator returns the platform locator.
func NewLocator() (Locator, error) {
	return nil, errors.New("window lookup not supported on this platform")
}
