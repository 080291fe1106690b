// Package notify shows desktop notifications through the freedesktop
// notification service on the session bus.
package notify

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
	"github.com/godbus/dbus/v5"
)

const (
	notifyService = "org.freedesktop.Notifications"
	notifyPath    = "/org/freedesktop/Notifications"
	notifyMethod  = notifyService + ".Notify"

	appName       = "InfinitePIP"
	expireTimeout = int32(5000)
	urgencyNormal = byte(1)
)

// Notifier shows short messages to the user.
type Notifier interface {
	Notify(summary, body string) error
	Close() error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(string, string) error { return nil }
func (Nop) Close() error                { return nil }

// DBus sends notifications to org.freedesktop.Notifications.
type DBus struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	mu   sync.Mutex
	// last notification id, reused so a burst replaces the previous popup
	lastID uint32
}

// NewDBus connects to the session bus.
func NewDBus() (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &DBus{
		conn: conn,
		obj:  conn.Object(notifyService, dbus.ObjectPath(notifyPath)),
	}, nil
}

// Notify implements Notifier.
func (d *DBus) Notify(summary, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(urgencyNormal),
	}
	var id uint32
	err := d.obj.Call(notifyMethod, 0,
		appName,
		d.lastID,
		"",
		summary,
		body,
		[]string{},
		hints,
		expireTimeout,
	).Store(&id)
	if err != nil {
		return fmt.Errorf("notify failed: %w", err)
	}
	d.lastID = id
	return nil
}

// Close releases the bus connection.
func (d *DBus) Close() error {
	return d.conn.Close()
}

// New returns a D-Bus notifier when enabled and reachable, otherwise Nop.
func New(enabled bool) Notifier {
	if !enabled {
		return Nop{}
	}
	n, err := NewDBus()
	if err != nil {
		logger.WithComponent("notify").Warn().Err(err).Msg("Desktop notifications unavailable")
		return Nop{}
	}
	return n
}

// Created is the message shown after a PIP is opened remotely.
func Created(title string) (summary, body string) {
	if title == "" {
		title = "Unknown Window"
	}
	return appName, "Created PIP for: " + title
}

// Failed is the message shown when a remote PIP could not be opened.
func Failed(err error) (summary, body string) {
	return appName + " Error", fmt.Sprintf("Could not create PIP: %v", err)
}
