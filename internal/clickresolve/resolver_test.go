package clickresolve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/nstolbov/zuluview/internal/geom"
	"github.com/nstolbov/zuluview/internal/zulu"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type selectFunc func(ctx context.Context, layer string, lat, lon, scale float64) ([]zulu.Field, bool, error)

func (f selectFunc) SelectAt(ctx context.Context, layer string, lat, lon, scale float64) ([]zulu.Field, bool, error) {
	return f(ctx, layer, lat, lon, scale)
}

type fetchFunc func(ctx context.Context, typeName string, bbox *geom.BBox) (geom.FeatureCollection, error)

func (f fetchFunc) GetFeatures(ctx context.Context, typeName string, bbox *geom.BBox) (geom.FeatureCollection, error) {
	return f(ctx, typeName, bbox)
}

type popup struct {
	at   geom.Coord
	html string
}

type fakeUI struct {
	mu      sync.Mutex
	popups  []popup
	cleared int
}

func (u *fakeUI) ShowPopup(at geom.Coord, html string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.popups = append(u.popups, popup{at: at, html: html})
}

func (u *fakeUI) ClearPopup() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cleared++
}

func (u *fakeUI) last(t *testing.T) popup {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.popups) == 0 {
		t.Fatalf("no popup was shown")
	}
	return u.popups[len(u.popups)-1]
}

func noFallback(t *testing.T) Fetcher {
	return fetchFunc(func(_ context.Context, _ string, _ *geom.BBox) (geom.FeatureCollection, error) {
		t.Fatalf("fallback must not be called")
		return nil, nil
	})
}

func newResolver(sel Selector, fb Fetcher, ui UI, outcomes *[]string) *Resolver {
	return New(discardLog(), sel, fb, ui, "pipes", "net:pipes", Options{
		OnResolved: func(_ uint64, outcome string) { *outcomes = append(*outcomes, outcome) },
	})
}

func TestResolve_PrimaryHit(t *testing.T) {
	ui := &fakeUI{}
	var outcomes []string
	var gotLat, gotLon float64
	sel := selectFunc(func(_ context.Context, layer string, lat, lon, scale float64) ([]zulu.Field, bool, error) {
		if layer != "pipes" {
			t.Errorf("layer got %q", layer)
		}
		if scale <= 0 {
			t.Errorf("scale got %v", scale)
		}
		gotLat, gotLon = lat, lon
		return []zulu.Field{{UserName: "Diameter", Value: "150"}}, true, nil
	})

	r := newResolver(sel, noFallback(t), ui, &outcomes)
	r.Resolve(59.95, 30.3, 15)

	if gotLat != 59.95 || gotLon != 30.3 {
		t.Fatalf("query point got %v,%v", gotLat, gotLon)
	}
	p := ui.last(t)
	if p.at != (geom.Coord{X: 30.3, Y: 59.95}) {
		t.Fatalf("popup anchor got %+v", p.at)
	}
	if !strings.Contains(p.html, "Diameter") || !strings.Contains(p.html, "150") {
		t.Fatalf("popup html got %q", p.html)
	}
	if len(outcomes) != 1 || outcomes[0] != "resolved" {
		t.Fatalf("outcomes got %v", outcomes)
	}
	if ui.cleared != 1 {
		t.Fatalf("previous popup must be cleared once, got %d", ui.cleared)
	}
}

func TestResolve_EscapesRemoteContent(t *testing.T) {
	ui := &fakeUI{}
	var outcomes []string
	sel := selectFunc(func(_ context.Context, _ string, _, _, _ float64) ([]zulu.Field, bool, error) {
		return []zulu.Field{{UserName: "note", Value: `<script>alert(1)</script>`}}, true, nil
	})

	r := newResolver(sel, noFallback(t), ui, &outcomes)
	r.Resolve(59.95, 30.3, 15)

	p := ui.last(t)
	if strings.Contains(p.html, "<script>") {
		t.Fatalf("unescaped markup in popup: %q", p.html)
	}
	if !strings.Contains(p.html, "&lt;script&gt;") {
		t.Fatalf("expected escaped markup, got %q", p.html)
	}
}

func TestResolve_HitWithoutFields(t *testing.T) {
	ui := &fakeUI{}
	var outcomes []string
	sel := selectFunc(func(_ context.Context, _ string, _, _, _ float64) ([]zulu.Field, bool, error) {
		return []zulu.Field{}, true, nil
	})

	r := newResolver(sel, noFallback(t), ui, &outcomes)
	r.Resolve(59.95, 30.3, 15)

	if !strings.Contains(ui.last(t).html, "Attributes unavailable") {
		t.Fatalf("popup html got %q", ui.last(t).html)
	}
	if outcomes[0] != "resolved" {
		t.Fatalf("outcomes got %v", outcomes)
	}
}

func TestResolve_MissFallsBackToBBoxFetch(t *testing.T) {
	ui := &fakeUI{}
	var outcomes []string
	sel := selectFunc(func(_ context.Context, _ string, _, _, _ float64) ([]zulu.Field, bool, error) {
		return nil, false, nil
	})
	var gotBBox geom.BBox
	fb := fetchFunc(func(_ context.Context, typeName string, bbox *geom.BBox) (geom.FeatureCollection, error) {
		if typeName != "net:pipes" {
			t.Errorf("typeName got %q", typeName)
		}
		gotBBox = *bbox
		return geom.FeatureCollection{
			{Attributes: map[string]string{"NAME": "first"}},
			{Attributes: map[string]string{"NAME": "second"}},
		}, nil
	})

	r := newResolver(sel, fb, ui, &outcomes)
	r.Resolve(59.95, 30.3, 15)

	want := geom.Around(geom.Coord{X: 30.3, Y: 59.95}, DefaultFallbackDeg)
	if gotBBox != want {
		t.Fatalf("fallback bbox got %+v want %+v", gotBBox, want)
	}
	p := ui.last(t)
	if !strings.Contains(p.html, "first") || strings.Contains(p.html, "second") {
		t.Fatalf("first feature must win, got %q", p.html)
	}
	if outcomes[0] != "resolved" {
		t.Fatalf("outcomes got %v", outcomes)
	}
}

func TestResolve_NothingFound(t *testing.T) {
	ui := &fakeUI{}
	var outcomes []string
	sel := selectFunc(func(_ context.Context, _ string, _, _, _ float64) ([]zulu.Field, bool, error) {
		return nil, false, nil
	})
	fb := fetchFunc(func(_ context.Context, _ string, _ *geom.BBox) (geom.FeatureCollection, error) {
		return geom.FeatureCollection{}, nil
	})

	r := newResolver(sel, fb, ui, &outcomes)
	r.Resolve(59.95, 30.3, 15)

	if !strings.Contains(ui.last(t).html, "Object not found") {
		t.Fatalf("popup html got %q", ui.last(t).html)
	}
	if outcomes[0] != "not_found" {
		t.Fatalf("outcomes got %v", outcomes)
	}
}

func TestResolve_PrimaryErrorSurfacedWhenFallbackFails(t *testing.T) {
	ui := &fakeUI{}
	var outcomes []string
	sel := selectFunc(func(_ context.Context, _ string, _, _, _ float64) ([]zulu.Field, bool, error) {
		return nil, false, errors.New("zulu unreachable")
	})
	fb := fetchFunc(func(_ context.Context, _ string, _ *geom.BBox) (geom.FeatureCollection, error) {
		return nil, errors.New("wfs unreachable")
	})

	r := newResolver(sel, fb, ui, &outcomes)
	r.Resolve(59.95, 30.3, 15)

	if !strings.Contains(ui.last(t).html, "Lookup failed") ||
		!strings.Contains(ui.last(t).html, "zulu unreachable") {
		t.Fatalf("popup html got %q", ui.last(t).html)
	}
	if outcomes[0] != "error_surfaced" {
		t.Fatalf("outcomes got %v", outcomes)
	}
}

func TestResolve_PrimaryErrorRecoveredByFallback(t *testing.T) {
	ui := &fakeUI{}
	var outcomes []string
	sel := selectFunc(func(_ context.Context, _ string, _, _, _ float64) ([]zulu.Field, bool, error) {
		return nil, false, errors.New("zulu unreachable")
	})
	fb := fetchFunc(func(_ context.Context, _ string, _ *geom.BBox) (geom.FeatureCollection, error) {
		return geom.FeatureCollection{{Attributes: map[string]string{"NAME": "rescued"}}}, nil
	})

	r := newResolver(sel, fb, ui, &outcomes)
	r.Resolve(59.95, 30.3, 15)

	if !strings.Contains(ui.last(t).html, "rescued") {
		t.Fatalf("popup html got %q", ui.last(t).html)
	}
	if outcomes[0] != "resolved" {
		t.Fatalf("outcomes got %v", outcomes)
	}
}

func TestResolve_CancelledShowsNothing(t *testing.T) {
	ui := &fakeUI{}
	var outcomes []string
	sel := selectFunc(func(_ context.Context, _ string, _, _, _ float64) ([]zulu.Field, bool, error) {
		return nil, false, context.Canceled
	})

	r := newResolver(sel, noFallback(t), ui, &outcomes)
	r.Resolve(59.95, 30.3, 15)

	ui.mu.Lock()
	defer ui.mu.Unlock()
	if len(ui.popups) != 0 {
		t.Fatalf("cancelled resolution must not show a popup, got %v", ui.popups)
	}
	if len(outcomes) != 1 || outcomes[0] != "cancelled" {
		t.Fatalf("outcomes got %v", outcomes)
	}
	if ui.cleared != 1 {
		t.Fatalf("the click itself still clears the old popup, got %d", ui.cleared)
	}
}

func TestResolve_StalePopupSuppressed(t *testing.T) {
	ui := &fakeUI{}
	var outcomes []string
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	sel := selectFunc(func(_ context.Context, _ string, lat, _, _ float64) ([]zulu.Field, bool, error) {
		if lat == 1 {
			once.Do(func() { close(started) })
			<-release
			return []zulu.Field{{UserName: "stale", Value: "old"}}, true, nil
		}
		return []zulu.Field{{UserName: "fresh", Value: "new"}}, true, nil
	})

	var mu sync.Mutex
	r := New(discardLog(), sel, noFallback(t), ui, "pipes", "net:pipes", Options{
		OnResolved: func(_ uint64, outcome string) {
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		},
	})

	done := make(chan struct{})
	go func() {
		r.Resolve(1, 1, 15)
		close(done)
	}()
	<-started
	r.Resolve(2, 2, 15) // supersedes the first click
	close(release)
	<-done

	ui.mu.Lock()
	defer ui.mu.Unlock()
	if len(ui.popups) != 1 {
		t.Fatalf("popups got %d want 1", len(ui.popups))
	}
	if !strings.Contains(ui.popups[0].html, "fresh") {
		t.Fatalf("stale popup displaced the fresh one: %q", ui.popups[0].html)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(outcomes) != 2 {
		t.Fatalf("outcomes got %v want one per click", outcomes)
	}
	if outcomes[0] != "resolved" || outcomes[1] != "superseded" {
		t.Fatalf("outcomes got %v want [resolved superseded]", outcomes)
	}
}
