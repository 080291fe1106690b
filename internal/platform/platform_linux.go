//go:build linux

package platform

import (
	"os"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
)

func detect() Capabilities {
	caps := Capabilities{HasNotifications: hasSessionBus()}
	if os.Getenv("DISPLAY") == "" {
		return caps
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return caps
	}
	defer conn.Close()

	caps.HasX11 = true
	caps.HasOverlay = true
	// Window handles are usable even without Composite; GetImage covers that case.
	caps.HasWindowCapture = true
	caps.HasComposite = composite.Init(conn) == nil
	return caps
}
