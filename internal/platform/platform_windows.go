//go:build windows

package platform

import "golang.org/x/sys/windows"

func detect() Capabilities {
	user32 := windows.NewLazySystemDLL("user32.dll")
	printWindow := user32.NewProc("PrintWindow")
	return Capabilities{
		HasWindowCapture: printWindow.Find() == nil,
		HasOverlay:       false,
	}
}
