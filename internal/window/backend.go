// Package window resolves application windows by title so that sessions
// without a usable native handle can keep following their window.
package window

import (
	"errors"
	"strings"

	"github.com/bryanchriswhite/InfinitePIP/internal/source"
)

// ErrNotFound is returned when no window matches a lookup.
var ErrNotFound = errors.New("window not found")

// Info describes a top-level window.
type Info struct {
	Handle uint64      `json:"handle"`
	Title  string      `json:"title"`
	Class  string      `json:"class,omitempty"`
	PID    int         `json:"pid,omitempty"`
	Bounds source.Rect `json:"bounds"`
}

// Locator finds windows by title or handle.
type Locator interface {
	// FindByTitle returns the first window whose title equals title, or
	// failing that the first whose title contains it.
	FindByTitle(title string) (*Info, error)
	// Lookup returns the current state of a known handle.
	Lookup(handle uint64) (*Info, error)
	Name() string
	Close() error
}

// matchTitle picks the best candidate for title: exact match first, then a
// case-insensitive substring match. Candidates with empty bounds are skipped.
func matchTitle(title string, candidates []*Info) (*Info, error) {
	want := strings.TrimSpace(title)
	if want == "" {
		return nil, ErrNotFound
	}

	for _, c := range candidates {
		if c.Title == want && !c.Bounds.Empty() {
			return c, nil
		}
	}
	lower := strings.ToLower(want)
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Title), lower) && !c.Bounds.Empty() {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

// Chain asks each locator in turn and returns the first hit.
type Chain []Locator

func (c Chain) FindByTitle(title string) (*Info, error) {
	for _, l := range c {
		if info, err := l.FindByTitle(title); err == nil {
			return info, nil
		}
	}
	return nil, ErrNotFound
}

func (c Chain) Lookup(handle uint64) (*Info, error) {
	for _, l := range c {
		if info, err := l.Lookup(handle); err == nil {
			return info, nil
		}
	}
	return nil, ErrNotFound
}

func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, l := range c {
		names[i] = l.Name()
	}
	return strings.Join(names, "+")
}

func (c Chain) Close() error {
	var errs []error
	for _, l := range c {
		errs = append(errs, l.Close())
	}
	return errors.Join(errs...)
}
