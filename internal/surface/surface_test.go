package surface

import (
	"errors"
	"image"
	"testing"

	"github.com/bryanchriswhite/InfinitePIP/internal/aspect"
)

type countSurface struct {
	renders, applies, closes int
}

func (c *countSurface) Render(*image.RGBA)    { c.renders++ }
func (c *countSurface) Apply(aspect.Geometry) { c.applies++ }
func (c *countSurface) SetOpacity(float64)    {}
func (c *countSurface) SetTopmost(bool)       {}
func (c *countSurface) Close()                { c.closes++ }

func TestCombineSkipsFailingFactories(t *testing.T) {
	a := &countSurface{}
	b := &countSurface{}
	ok := func(s Surface) Factory {
		return FactoryFunc(func(Spec, InputSink) (Surface, error) { return s, nil })
	}
	bad := FactoryFunc(func(Spec, InputSink) (Surface, error) { return nil, errors.New("no display") })

	s, err := Combine(ok(a), bad, ok(b)).Create(Spec{}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.Render(nil)
	s.Apply(aspect.Geometry{})
	s.Close()
	if a.renders != 1 || b.renders != 1 || a.closes != 1 || b.applies != 1 {
		t.Fatalf("fan-out missed: a=%+v b=%+v", a, b)
	}

	single, err := Combine(bad, ok(a)).Create(Spec{}, nil)
	if err != nil || single != Surface(a) {
		t.Fatalf("single surface should be returned directly: %v %v", single, err)
	}

	if _, err := Combine(bad).Create(Spec{}, nil); err == nil {
		t.Fatal("all factories failed but no error")
	}
	if _, err := Combine().Create(Spec{}, nil); err == nil {
		t.Fatal("no factories but no error")
	}
}

func TestKeyForRune(t *testing.T) {
	cases := map[rune]Key{
		'+': KeyOpacityUp,
		'=': KeyOpacityUp,
		'-': KeyOpacityDown,
		'0': KeyOpacityReset,
		't': KeyToggleTopmost,
		'q': KeyClose,
		'x': KeyUnknown,
	}
	for r, want := range cases {
		if got := KeyForRune(r); got != want {
			t.Fatalf("KeyForRune(%q) = %v, want %v", r, got, want)
		}
	}
}
