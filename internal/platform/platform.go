// Package platform negotiates which native capabilities are available once at
// process start. The result is passed explicitly to the capturer and session
// manager instead of being consulted through globals.
package platform

import (
	"os"
	"runtime"

	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
)

// Capabilities is the outcome of capability negotiation.
type Capabilities struct {
	OS string `json:"os"`
	// HasWindowCapture is true when windows can be captured by native handle.
	HasWindowCapture bool `json:"has_window_capture"`
	// HasTray is always false: tray integration is not provided.
	HasTray bool `json:"has_tray"`
	// HasX11 reports a reachable X display.
	HasX11 bool `json:"has_x11"`
	// HasComposite reports the X Composite extension (full-content window capture).
	HasComposite bool `json:"has_composite"`
	// HasOverlay reports that an on-screen overlay surface can be created.
	HasOverlay bool `json:"has_overlay"`
	// HasNotifications reports a session D-Bus for desktop notifications.
	HasNotifications bool `json:"has_notifications"`
}

// Detect probes the running environment.
func Detect() Capabilities {
	caps := detect()
	caps.OS = runtime.GOOS

	logger.WithComponent("platform").Info().
		Str("os", caps.OS).
		Bool("window_capture", caps.HasWindowCapture).
		Bool("x11", caps.HasX11).
		Bool("overlay", caps.HasOverlay).
		Bool("notifications", caps.HasNotifications).
		Msg("Platform capabilities detected")

	return caps
}

// Headless returns capabilities with every native feature disabled.
func Headless() Capabilities {
	return Capabilities{OS: runtime.GOOS}
}

func hasSessionBus() bool {
	return os.Getenv("DBUS_SESSION_BUS_ADDRESS") != ""
}
