// Package viewsync keeps one live feature layer consistent with a moving
// viewport. Viewport bursts are debounced, every fetch captures a generation
// number, and only the newest generation may apply its result, so a slow
// early fetch can never overwrite a fast late one.
package viewsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nstolbov/zuluview/internal/geom"
	"github.com/nstolbov/zuluview/internal/observability"
)

// Surface is the rendering collaborator. The synchronizer never draws; it
// hands over full replacement data and view-fit requests.
type Surface interface {
	ReplaceFeatures(fc geom.FeatureCollection)
	ClearFeatures()
	FitBounds(b geom.BBox)
}

// Fetcher produces the layer's features for a bounding box. Satisfied by
// *ogc.Client.
type Fetcher interface {
	GetFeatures(ctx context.Context, typeName string, bbox *geom.BBox) (geom.FeatureCollection, error)
}

type State int

const (
	Disabled State = iota
	Loading
	Populated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Populated:
		return "populated"
	default:
		return "disabled"
	}
}

const DefaultDebounce = 350 * time.Millisecond

type Options struct {
	// Debounce for viewport-triggered refreshes; DefaultDebounce when zero.
	Debounce time.Duration
	// FitPadding is the ratio applied around result bounds on the enable
	// path.
	FitPadding float64
	// OnFetchDone, when set, is called after every fetch settles with
	// whether its result was applied. Used by tests to observe completion.
	OnFetchDone func(generation uint64, applied bool)
}

// Synchronizer owns the single live feature layer for one typeName. Safe for
// concurrent use; event callbacks, timer fires and fetch completions all
// funnel through one mutex.
type Synchronizer struct {
	log      *slog.Logger
	fetch    Fetcher
	surface  Surface
	viewport func() geom.BBox
	typeName string
	opts     Options

	mu         sync.Mutex
	state      State
	generation uint64
	cancel     context.CancelFunc
	timer      *time.Timer
	features   geom.FeatureCollection
	index      *featureIndex
}

func New(log *slog.Logger, fetch Fetcher, surface Surface, viewport func() geom.BBox, typeName string, opts Options) *Synchronizer {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Synchronizer{
		log:      log,
		fetch:    fetch,
		surface:  surface,
		viewport: viewport,
		typeName: typeName,
		opts:     opts,
	}
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Features returns the currently displayed collection.
func (s *Synchronizer) Features() geom.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.features
}

// FeaturesAt hit-tests the displayed layer at a coordinate without touching
// the network. Attribute-only features are not indexed.
func (s *Synchronizer) FeaturesAt(c geom.Coord) []geom.Feature {
	s.mu.Lock()
	idx := s.index
	s.mu.Unlock()
	if idx == nil {
		return nil
	}
	return idx.at(c)
}

// Enable adds the layer: fetch the current viewport bbox and, on success,
// fit the view to the padded result bounds.
func (s *Synchronizer) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Disabled {
		return
	}
	s.state = Loading
	s.startFetchLocked(true)
}

// ViewportChanged notes a pan/zoom end. The fetch is debounced: bursts
// collapse into a single request after the quiet interval, and the view is
// not re-fit on refresh.
func (s *Synchronizer) ViewportChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Disabled {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.opts.Debounce, s.debounceFired)
}

func (s *Synchronizer) debounceFired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Disabled {
		return
	}
	s.timer = nil
	s.state = Loading
	s.startFetchLocked(false)
}

// Disable removes the layer: cancel any in-flight or pending fetch, clear
// the surface and discard the data. A later re-enable starts from scratch.
func (s *Synchronizer) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Disabled {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	// Any in-flight response becomes stale even if transport cancellation
	// does not land.
	s.generation++
	s.features = nil
	s.index = nil
	s.surface.ClearFeatures()
	s.state = Disabled
	s.log.Debug("layer disabled", "type_name", s.typeName)
}

// startFetchLocked issues a bbox fetch for the current viewport. Caller
// holds s.mu.
func (s *Synchronizer) startFetchLocked(fitView bool) {
	if s.cancel != nil {
		// Proactive transport cancellation of the superseded fetch; the
		// generation bump below is the authoritative staleness check.
		s.cancel()
	}
	s.generation++
	gen := s.generation
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	bbox := s.viewport()
	s.log.Debug("bbox fetch start",
		"type_name", s.typeName,
		"generation", gen,
		"bbox", bbox.String())

	go s.run(ctx, gen, bbox, fitView)
}

func (s *Synchronizer) run(ctx context.Context, gen uint64, bbox geom.BBox, fitView bool) {
	fc, err := s.fetch.GetFeatures(ctx, s.typeName, &bbox)

	s.mu.Lock()
	defer s.mu.Unlock()

	applied := false
	defer func() {
		if s.opts.OnFetchDone != nil {
			s.opts.OnFetchDone(gen, applied)
		}
	}()

	if gen != s.generation {
		observability.IncFetchResult("layer", "stale")
		s.log.Debug("bbox fetch superseded", "type_name", s.typeName, "generation", gen)
		return
	}

	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		observability.IncFetchResult("layer", "cancelled")
		s.log.Debug("bbox fetch cancelled", "type_name", s.typeName, "generation", gen)
	case err != nil:
		// Previous displayed state is retained; the stream stays usable.
		observability.IncFetchResult("layer", "error")
		s.log.Warn("bbox fetch failed", "type_name", s.typeName, "generation", gen, "err", err)
	case len(fc) == 0:
		observability.IncFetchResult("layer", "empty")
		s.log.Debug("bbox fetch empty", "type_name", s.typeName, "generation", gen)
	default:
		s.features = fc
		s.index = newFeatureIndex(fc)
		s.surface.ReplaceFeatures(fc)
		if fitView {
			if b, ok := fc.Bounds(); ok {
				s.surface.FitBounds(b.Pad(s.opts.FitPadding))
			}
		}
		observability.IncFetchResult("layer", "applied")
		applied = true
		s.log.Debug("bbox fetch applied",
			"type_name", s.typeName,
			"generation", gen,
			"features", len(fc))
	}

	if s.state == Loading {
		s.state = Populated
	}
}
