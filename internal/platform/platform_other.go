//go:build !linux && !windows

package platform

func detect() Capabilities {
	return Capabilities{HasNotifications: hasSessionBus()}
}
