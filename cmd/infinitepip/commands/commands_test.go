package commands

import (
	"testing"

	"github.com/bryanchriswhite/InfinitePIP/internal/source"
)

func TestParseBBox(t *testing.T) {
	got, err := parseBBox("10, 20,300,200")
	if err != nil {
		t.Fatal(err)
	}
	want := []int{10, 20, 300, 200}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("parseBBox = %v, want %v", got, want)
		}
	}

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "1,2,3,4,5"} {
		if _, err := parseBBox(bad); err == nil {
			t.Fatalf("parseBBox(%q) succeeded", bad)
		}
	}
}

func TestInitialSources(t *testing.T) {
	serveMonitors = []int{1}
	serveRegions = []string{"0,0,640,360"}
	serveTitles = []string{"Firefox"}
	t.Cleanup(func() {
		serveMonitors, serveRegions, serveTitles = nil, nil, nil
	})

	sources, err := initialSources()
	if err != nil {
		t.Fatal(err)
	}
	kinds := []source.Kind{source.Monitor, source.Region, source.Window}
	if len(sources) != len(kinds) {
		t.Fatalf("got %d sources", len(sources))
	}
	for i, k := range kinds {
		if sources[i].Kind() != k {
			t.Fatalf("source %d kind = %v, want %v", i, sources[i].Kind(), k)
		}
	}

	serveRegions = []string{"0,0,0,360"}
	if _, err := initialSources(); err == nil {
		t.Fatal("empty region accepted")
	}
}
