// Package clickresolve turns a map click into an attribute popup: ask the
// point-query protocol first, fall back to a small-bbox WFS fetch, and only
// then report "not found". At most one resolution is in flight; a new click
// cancels the previous one outright.
package clickresolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nstolbov/zuluview/internal/geom"
	"github.com/nstolbov/zuluview/internal/observability"
	"github.com/nstolbov/zuluview/internal/zulu"
)

// Selector is the point-query protocol. Satisfied by *zulu.Client.
type Selector interface {
	SelectAt(ctx context.Context, layer string, lat, lon, scale float64) ([]zulu.Field, bool, error)
}

// Fetcher is the WFS fallback source. Satisfied by *ogc.Client.
type Fetcher interface {
	GetFeatures(ctx context.Context, typeName string, bbox *geom.BBox) (geom.FeatureCollection, error)
}

// UI is the rendering collaborator for the click marker and popup.
type UI interface {
	ShowPopup(at geom.Coord, html string)
	ClearPopup()
}

// DefaultFallbackDeg is the half-width of the fallback bbox around the
// click, roughly 70 m.
const DefaultFallbackDeg = 0.0007

type Options struct {
	// FallbackDeg overrides DefaultFallbackDeg when positive.
	FallbackDeg float64
	// OnResolved, when set, is called with the terminal outcome of each
	// resolution. Used by tests.
	OnResolved func(generation uint64, outcome string)
}

// Resolver owns the single click marker and the click-resolution stream's
// generation counter and cancellation handle.
type Resolver struct {
	log      *slog.Logger
	selector Selector
	fallback Fetcher
	ui       UI
	layer    string // zulu layer for SelectElemByXY
	typeName string // WFS typeName for the fallback fetch
	opts     Options

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
}

func New(log *slog.Logger, selector Selector, fallback Fetcher, ui UI, layer, typeName string, opts Options) *Resolver {
	if opts.FallbackDeg <= 0 {
		opts.FallbackDeg = DefaultFallbackDeg
	}
	return &Resolver{
		log:      log,
		selector: selector,
		fallback: fallback,
		ui:       ui,
		layer:    layer,
		typeName: typeName,
		opts:     opts,
	}
}

// Resolve handles one click at (lat, lon) with the current zoom. It runs in
// the calling goroutine; callers wanting asynchrony wrap it in go.
func (r *Resolver) Resolve(lat, lon float64, zoom int) {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.generation++
	gen := r.generation
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.ui.ClearPopup()
	r.mu.Unlock()

	at := geom.Coord{X: lon, Y: lat}
	scale := geom.ScaleAt(zoom)

	fields, found, err := r.selector.SelectAt(ctx, r.layer, lat, lon, scale)
	switch {
	case isCancelled(err):
		r.finish(gen, "cancelled")
		r.log.Debug("click resolution cancelled", "generation", gen)
		return
	case err == nil && found:
		// An object with zero fields still resolves; attributes are just
		// unavailable.
		if len(fields) == 0 {
			r.conclude(gen, at, messageHTML("Attributes unavailable"), "resolved")
		} else {
			r.conclude(gen, at, fieldsHTML(fields), "resolved")
		}
		return
	case err != nil:
		// Protocol errors mean "try the fallback", not user-visible
		// failure; keep the error in case the fallback comes up empty too.
		r.log.Warn("point query failed, falling back", "generation", gen, "err", err)
	}

	r.resolveFallback(ctx, gen, at, err)
}

func (r *Resolver) resolveFallback(ctx context.Context, gen uint64, at geom.Coord, primaryErr error) {
	bbox := geom.Around(at, r.opts.FallbackDeg)
	fc, err := r.fallback.GetFeatures(ctx, r.typeName, &bbox)
	switch {
	case isCancelled(err):
		r.finish(gen, "cancelled")
		r.log.Debug("click fallback cancelled", "generation", gen)
		return
	case err == nil && len(fc) > 0:
		// First feature wins; document order is preserved by the parser.
		r.conclude(gen, at, attributesHTML(fc[0].Attributes), "resolved")
		return
	case err != nil:
		r.log.Warn("click fallback failed", "generation", gen, "err", err)
	}

	if primaryErr != nil {
		r.conclude(gen, at, messageHTML(fmt.Sprintf("Lookup failed: %v", primaryErr)), "error_surfaced")
		return
	}
	r.conclude(gen, at, messageHTML("Object not found"), "not_found")
}

// conclude shows the popup and records the terminal outcome. A resolution
// superseded by a newer click while in flight shows nothing and counts as
// superseded, whatever its own result was.
func (r *Resolver) conclude(gen uint64, at geom.Coord, html, outcome string) {
	r.mu.Lock()
	stale := gen != r.generation
	if !stale {
		r.ui.ShowPopup(at, html)
	}
	r.mu.Unlock()

	if stale {
		outcome = "superseded"
	}
	r.finish(gen, outcome)
}

func (r *Resolver) finish(gen uint64, outcome string) {
	observability.IncClickResolution(outcome)
	if r.opts.OnResolved != nil {
		r.opts.OnResolved(gen, outcome)
	}
}

func isCancelled(err error) bool {
	return err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
