package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/bryanchriswhite/InfinitePIP/internal/source"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		x0, y0, x1, y1 int
		want           source.Rect
	}{
		{10, 20, 110, 70, source.Rect{X: 10, Y: 20, Width: 100, Height: 50}},
		{110, 70, 10, 20, source.Rect{X: 10, Y: 20, Width: 100, Height: 50}},
		{110, 20, 10, 70, source.Rect{X: 10, Y: 20, Width: 100, Height: 50}},
		{-50, -5, 50, 5, source.Rect{X: -50, Y: -5, Width: 100, Height: 10}},
		{3, 3, 3, 3, source.Rect{X: 3, Y: 3}},
	}
	for _, tc := range cases {
		if got := Normalize(tc.x0, tc.y0, tc.x1, tc.y1); got != tc.want {
			t.Fatalf("Normalize(%d,%d,%d,%d) = %+v, want %+v", tc.x0, tc.y0, tc.x1, tc.y1, got, tc.want)
		}
	}
}

func TestFinish(t *testing.T) {
	cases := []struct {
		name string
		rect source.Rect
		ok   bool
	}{
		{"minimum", source.Rect{Width: 10, Height: 10}, true},
		{"normal", source.Rect{X: 5, Y: 6, Width: 640, Height: 360}, true},
		{"too narrow", source.Rect{Width: 9, Height: 300}, false},
		{"too short", source.Rect{Width: 300, Height: 9}, false},
		{"click", source.Rect{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Finish(tc.rect)
			if !tc.ok {
				if !errors.Is(res.Err, ErrSelectionTooSmall) || res.Source != nil {
					t.Fatalf("want ErrSelectionTooSmall, got %+v", res)
				}
				return
			}
			if res.Err != nil {
				t.Fatal(res.Err)
			}
			if res.Source.Kind() != source.Region || res.Source.Region() != tc.rect {
				t.Fatalf("source = %+v", res.Source.Info())
			}
		})
	}
}

type stubSelector struct {
	res Result
}

func (s stubSelector) Select(context.Context) <-chan Result {
	return resolved(s.res)
}

type hangingSelector struct{}

func (hangingSelector) Select(context.Context) <-chan Result {
	return make(chan Result)
}

func TestAwait(t *testing.T) {
	want := Finish(source.Rect{X: 1, Y: 2, Width: 30, Height: 40})
	src, err := Await(context.Background(), stubSelector{res: want})
	if err != nil || src != want.Source {
		t.Fatalf("Await = %v, %v", src, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Await(ctx, hangingSelector{}); !errors.Is(err, ErrCancelled) {
		t.Fatalf("cancelled Await: %v", err)
	}

	ch := resolved(Result{Err: ErrCancelled})
	if r := <-ch; !errors.Is(r.Err, ErrCancelled) {
		t.Fatal("resolved lost its value")
	}
	if _, ok := <-ch; ok {
		t.Fatal("resolved channel not closed")
	}
}
