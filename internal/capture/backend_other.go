//go:build !linux && !windows

package capture

// NewBackend returns the platform window capture backend.
func NewBackend() (Backend, error) {
	return nil, ErrUnsupported
}
