// Package session owns one loaded run together with its viewport, panels and
// hover trackers. Every mutation runs on the session's event loop, so the
// single-threaded core packages never see concurrent access.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/powerscope/powerscope/internal/hover"
	"github.com/powerscope/powerscope/internal/loader"
	"github.com/powerscope/powerscope/internal/panel"
	"github.com/powerscope/powerscope/internal/timeline"
	"github.com/powerscope/powerscope/internal/viewport"
)

var (
	// ErrNotLoaded is returned by gestures and queries before the first
	// successful load.
	ErrNotLoaded = errors.New("no run loaded")
	// ErrStaleLoad is returned when a finished load was overtaken by a
	// newer one and discarded.
	ErrStaleLoad = errors.New("load superseded by a newer load")
	// ErrClosed is returned once the event loop has stopped.
	ErrClosed = errors.New("session closed")
)

// UnknownMetricError names a metric the loaded run does not have.
type UnknownMetricError struct {
	Metric string
}

func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("unknown metric %q", e.Metric)
}

// Config holds configuration for a Session.
type Config struct {
	Width       float64
	PanelHeight float64
	MinZoom     float64
	MaxZoom     float64
	SpanLimit   int
	Verbose     bool
}

// Snapshot is the published, read-only state after the last command.
type Snapshot struct {
	Generation uint64                   `json:"generation"`
	Loaded     bool                     `json:"loaded"`
	Run        *timeline.Run            `json:"-"`
	Alignment  timeline.Alignment       `json:"alignment"`
	AlignError string                   `json:"alignment_error,omitempty"`
	Transform  viewport.Transform       `json:"transform"`
	Version    uint64                   `json:"version"`
	Window     [2]float64               `json:"window"`
	Frames     []panel.Frame            `json:"frames"`
	Tooltips   map[string]hover.Tooltip `json:"tooltips,omitempty"`
	LoadError  string                   `json:"load_error,omitempty"`
}

type command struct {
	fn    func() error
	reply chan error
}

// Session serializes gestures, hover and load commits onto one goroutine.
type Session struct {
	cfg    Config
	loader *loader.Loader

	cmds chan command
	done chan struct{}

	// Owned by the event loop.
	vp         *viewport.Viewport
	run        *timeline.Run
	generation uint64
	set        *panel.Set
	trackers   map[string]*hover.Tracker
	tooltips   map[string]hover.Tooltip
	lastErr    error

	manifest atomic.Pointer[loader.Manifest]

	snapMu sync.RWMutex
	snap   Snapshot

	subscriberMu     sync.Mutex
	subscribers      map[uint64]chan struct{}
	nextSubscriberID uint64
}

// New creates a session. Run must be started before any command is issued.
func New(cfg Config, l *loader.Loader) *Session {
	if cfg.Width <= 0 {
		cfg.Width = panel.DefaultWidth
	}
	if cfg.PanelHeight <= 0 {
		cfg.PanelHeight = panel.DefaultHeight
	}
	return &Session{
		cfg:         cfg,
		loader:      l,
		cmds:        make(chan command),
		done:        make(chan struct{}),
		vp:          viewport.New(viewport.Options{MinZoom: cfg.MinZoom, MaxZoom: cfg.MaxZoom}),
		trackers:    make(map[string]*hover.Tracker),
		tooltips:    make(map[string]hover.Tooltip),
		subscribers: make(map[uint64]chan struct{}),
	}
}

// Run processes commands until ctx is done. It must be called exactly once.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.closePanels()
			return ctx.Err()
		case cmd := <-s.cmds:
			err := cmd.fn()
			s.publish()
			cmd.reply <- err
		}
	}
}

func (s *Session) do(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load reads m and commits the result. The read runs on the caller's
// goroutine; only the commit is serialized.
func (s *Session) Load(ctx context.Context, m *loader.Manifest) error {
	return s.Commit(ctx, s.loader.Load(ctx, m))
}

// Reload re-reads the manifest of the last successful load, then its
// sources. A manifest that no longer parses leaves the current run in place.
func (s *Session) Reload(ctx context.Context) error {
	m := s.manifest.Load()
	if m == nil {
		return ErrNotLoaded
	}
	fresh, err := m.Refresh()
	if err != nil {
		s.do(ctx, func() error {
			s.lastErr = err
			return nil
		})
		return err
	}
	return s.Load(ctx, fresh)
}

// ReloadAsync schedules a reload, logging rather than returning failures.
// Watchers and the capture receiver use it.
func (s *Session) ReloadAsync(ctx context.Context) {
	go func() {
		err := s.Reload(ctx)
		switch {
		case err == nil:
			if s.cfg.Verbose {
				log.Printf("📁 Session: reloaded run\n")
			}
		case errors.Is(err, ErrStaleLoad), errors.Is(err, context.Canceled), errors.Is(err, ErrClosed):
		default:
			log.Printf("⚠️  Session: reload failed: %v\n", err)
		}
	}()
}

// Commit installs a finished load unless a newer load has started. A failed
// load leaves the current run, panels and viewport untouched.
func (s *Session) Commit(ctx context.Context, res loader.Result) error {
	return s.do(ctx, func() error {
		if s.loader.Stale(res) {
			if s.cfg.Verbose {
				log.Printf("⚠️  Session: discarding stale load #%d\n", res.Generation)
			}
			return ErrStaleLoad
		}
		if res.Err != nil {
			s.lastErr = res.Err
			return res.Err
		}
		if err := s.install(res.Run); err != nil {
			s.lastErr = err
			return err
		}
		s.generation = res.Generation
		s.lastErr = nil
		s.manifest.Store(res.Manifest)
		return nil
	})
}

func (s *Session) install(run *timeline.Run) error {
	s.closePanels()
	if err := s.vp.SetDomain(0, float64(run.DomainEnd()), s.cfg.Width); err != nil {
		return fmt.Errorf("set time domain: %w", err)
	}
	s.run = run

	s.set = panel.NewSet(run, s.vp, panel.Options{
		Width:     s.cfg.Width,
		Height:    s.cfg.PanelHeight,
		SpanLimit: s.cfg.SpanLimit,
	})
	if err := s.set.Warnings(); err != nil && s.cfg.Verbose {
		log.Printf("⚠️  Session: %v\n", err)
	}

	for _, p := range s.set.Panels() {
		key := p.Key()
		s.trackers[key] = hover.NewTracker(s.vp, p.Series(), hover.Options{
			Label:  p.Series().Label,
			ValueY: p.ValueY,
			Spans:  p.Spans(),
			OnUpdate: func(tip hover.Tooltip) {
				if tip.Visible {
					s.tooltips[key] = tip
				} else {
					delete(s.tooltips, key)
				}
			},
		})
	}
	return nil
}

func (s *Session) closePanels() {
	for key, t := range s.trackers {
		t.Close()
		delete(s.trackers, key)
	}
	clear(s.tooltips)
	if s.set != nil {
		s.set.Close()
		s.set = nil
	}
}

func (s *Session) gesture(ctx context.Context, fn func(vp *viewport.Viewport)) error {
	return s.do(ctx, func() error {
		if s.run == nil {
			return ErrNotLoaded
		}
		fn(s.vp)
		return nil
	})
}

// ZoomBy multiplies the zoom factor, keeping anchorPx fixed.
func (s *Session) ZoomBy(ctx context.Context, factor, anchorPx float64) error {
	return s.gesture(ctx, func(vp *viewport.Viewport) { vp.ZoomBy(factor, anchorPx) })
}

// PanBy shifts the view by dx pixels.
func (s *Session) PanBy(ctx context.Context, dx float64) error {
	return s.gesture(ctx, func(vp *viewport.Viewport) { vp.PanBy(dx) })
}

// ZoomToWindow shows [t0, t1] ms as closely as the zoom bounds allow.
func (s *Session) ZoomToWindow(ctx context.Context, t0, t1 float64) error {
	return s.gesture(ctx, func(vp *viewport.Viewport) { vp.ZoomToWindow(t0, t1) })
}

// SetTransform installs a transform, clamped to the zoom and pan bounds.
func (s *Session) SetTransform(ctx context.Context, t viewport.Transform) error {
	return s.gesture(ctx, func(vp *viewport.Viewport) { vp.SetTransform(t) })
}

// Reset returns to the full time domain.
func (s *Session) Reset(ctx context.Context) error {
	return s.gesture(ctx, func(vp *viewport.Viewport) { vp.Reset() })
}

func (s *Session) hover(ctx context.Context, metric string, fn func(t *hover.Tracker) hover.Tooltip) (hover.Tooltip, error) {
	var tip hover.Tooltip
	err := s.do(ctx, func() error {
		if s.run == nil {
			return ErrNotLoaded
		}
		t, ok := s.trackers[metric]
		if !ok {
			return &UnknownMetricError{Metric: metric}
		}
		tip = fn(t)
		return nil
	})
	return tip, err
}

// HoverEnter starts hovering metric's panel at px.
func (s *Session) HoverEnter(ctx context.Context, metric string, px float64) (hover.Tooltip, error) {
	return s.hover(ctx, metric, func(t *hover.Tracker) hover.Tooltip { return t.Enter(px) })
}

// HoverMove moves the pointer over metric's panel.
func (s *Session) HoverMove(ctx context.Context, metric string, px float64) (hover.Tooltip, error) {
	return s.hover(ctx, metric, func(t *hover.Tracker) hover.Tooltip { return t.Move(px) })
}

// HoverLeave ends hovering and hides the tooltip.
func (s *Session) HoverLeave(ctx context.Context, metric string) (hover.Tooltip, error) {
	return s.hover(ctx, metric, func(t *hover.Tracker) hover.Tooltip { return t.Leave() })
}

// Nearest looks up the sample of metric closest to t ms.
func (s *Session) Nearest(ctx context.Context, metric string, t float64) (timeline.Sample, int, error) {
	var (
		smp timeline.Sample
		idx int
	)
	err := s.do(ctx, func() error {
		if s.run == nil {
			return ErrNotLoaded
		}
		series, ok := s.run.Metric(metric)
		if !ok {
			return &UnknownMetricError{Metric: metric}
		}
		var found bool
		smp, idx, found = hover.Nearest(series.Samples, timeline.RelativeTime(t))
		if !found {
			return &timeline.EmptySeriesError{Metric: metric}
		}
		return nil
	})
	return smp, idx, err
}

// Snapshot returns the state published after the last command.
func (s *Session) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

// publish runs on the event loop after every command.
func (s *Session) publish() {
	snap := Snapshot{
		Generation: s.generation,
		Loaded:     s.run != nil,
		Run:        s.run,
		Transform:  s.vp.Transform(),
		Version:    s.vp.Version(),
	}
	if s.run != nil {
		snap.Alignment = s.run.Alignment
		snap.AlignError = s.run.Alignment.ErrorText()
	}
	if t0, t1, ok := s.vp.Window(); ok {
		snap.Window = [2]float64{t0, t1}
	}
	if s.set != nil {
		snap.Frames = s.set.Frames()
	}
	if len(s.tooltips) > 0 {
		snap.Tooltips = make(map[string]hover.Tooltip, len(s.tooltips))
		for k, v := range s.tooltips {
			snap.Tooltips[k] = v
		}
	}
	if s.lastErr != nil {
		snap.LoadError = s.lastErr.Error()
	}

	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()

	s.notifySubscribers()
}

// Subscribe returns a notification channel and an unsubscribe function.
// The channel receives a signal (non-blocking) after every command.
// The channel is buffered with capacity 1 to coalesce rapid updates.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()

	id := s.nextSubscriberID
	s.nextSubscriberID++

	ch := make(chan struct{}, 1)
	s.subscribers[id] = ch

	unsubscribe := func() {
		s.subscriberMu.Lock()
		defer s.subscriberMu.Unlock()
		delete(s.subscribers, id)
	}

	return ch, unsubscribe
}

// notifySubscribers sends a non-blocking signal to all subscriber channels.
func (s *Session) notifySubscribers() {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// Channel already has a pending notification; skip to coalesce.
		}
	}
}
