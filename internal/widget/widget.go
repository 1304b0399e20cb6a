// Package widget drives one map view from mount to idle: it fetches the
// heat overlay, fans out one PM2.5 query per location and tracks the
// requests still in flight.
package widget

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/i474232898/air-quality-map/internal/airquality"
	"github.com/i474232898/air-quality-map/internal/mapview"
	"github.com/i474232898/air-quality-map/internal/metrics"
)

// ErrAlreadyMounted is returned by Mount when the widget is mounted.
var ErrAlreadyMounted = errors.New("widget already mounted")

// Config is the per-widget rendering and query configuration.
type Config struct {
	View   mapview.Options
	Bounds airquality.Bounds
}

// DefaultConfig queries the whole world and uses mapview.DefaultOptions.
func DefaultConfig() Config {
	return Config{
		View:   mapview.DefaultOptions(),
		Bounds: airquality.WorldBounds,
	}
}

// Option customises a Widget.
type Option func(*Widget)

// WithListener subscribes l to the widget's events.
func WithListener(l Listener) Option {
	return func(w *Widget) {
		w.listener = l
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Widget) {
		w.logger = l
	}
}

// mount holds everything owned by a single Mount call.
type mount struct {
	ctx      context.Context
	cancel   context.CancelFunc
	view     *mapview.View
	idle     chan struct{}
	readings []airquality.CityReading
}

// Widget owns the map view of one page session.
type Widget struct {
	provider  airquality.Provider
	locations airquality.LocationSource
	cfg       Config
	listener  Listener
	logger    *slog.Logger

	// pending counts dispatched provider queries not yet settled.
	pending atomic.Int64
	wg      sync.WaitGroup

	// lifecycle serialises Mount and Unmount.
	lifecycle sync.Mutex

	mu    sync.Mutex
	state State
	cur   *mount

	notifyMu sync.Mutex
}

// New creates an unmounted widget.
func New(provider airquality.Provider, locations airquality.LocationSource, cfg Config, opts ...Option) *Widget {
	w := &Widget{
		provider:  provider,
		locations: locations,
		cfg:       cfg,
		logger:    slog.Default().With("component", "widget"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Mount creates a fresh map view and dispatches the bulk query. Queries run
// until they settle or Unmount is called; ctx only scopes their cancellation.
func (w *Widget) Mount(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.mu.Lock()
	if w.state != Uninitialized {
		w.mu.Unlock()
		return ErrAlreadyMounted
	}

	mctx, cancel := context.WithCancel(ctx)
	m := &mount{
		ctx:    mctx,
		cancel: cancel,
		view:   mapview.New(w.cfg.View),
		idle:   make(chan struct{}),
	}
	w.cur = m
	w.state = Initializing
	w.begin()
	w.mu.Unlock()

	metrics.MountedWidgets.Inc()
	w.emit(m, loadingEvent(true))

	go w.fetchBulk(m)
	return nil
}

// Unmount aborts pending queries, releases the view and waits for every
// completion handler to return. It is a no-op on an unmounted widget.
func (w *Widget) Unmount() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.mu.Lock()
	m := w.cur
	w.mu.Unlock()
	if m == nil {
		return
	}

	m.cancel()
	m.view.Release()
	w.wg.Wait()

	w.mu.Lock()
	w.cur = nil
	w.state = Uninitialized
	w.mu.Unlock()

	metrics.MountedWidgets.Dec()
}

// Loading reports whether any dispatched query has not settled yet.
func (w *Widget) Loading() bool {
	return w.pending.Load() > 0
}

// State returns the current lifecycle stage.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// View returns the mounted view, or nil.
func (w *Widget) View() *mapview.View {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cur == nil {
		return nil
	}
	return w.cur.view
}

// Config returns the widget's configuration.
func (w *Widget) Config() Config {
	return w.cfg
}

// Wait blocks until the current mount goes idle or ctx is done.
func (w *Widget) Wait(ctx context.Context) error {
	w.mu.Lock()
	m := w.cur
	w.mu.Unlock()
	if m == nil {
		return nil
	}

	select {
	case <-m.idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the widget's observable state.
func (w *Widget) Snapshot() Snapshot {
	w.mu.Lock()
	snap := Snapshot{
		State:    w.state,
		Readings: []airquality.CityReading{},
	}
	m := w.cur
	if m != nil {
		snap.Readings = append(snap.Readings, m.readings...)
	}
	w.mu.Unlock()

	snap.Loading = w.Loading()
	if m != nil {
		vs := m.view.Snapshot()
		snap.View = &vs
	}
	return snap
}

func (w *Widget) fetchBulk(m *mount) {
	defer w.settle(m)

	points, err := w.provider.FetchBounds(m.ctx, w.cfg.Bounds)
	if err != nil {
		w.logger.Debug("bulk query failed", "provider", w.provider.Name(), "error", err)
		return
	}

	if err := m.view.AttachHeatLayer(points); err != nil {
		return
	}
	w.setState(m, FetchingDetails)
	w.emit(m, Event{Type: EventHeat, Heat: &mapview.HeatLayer{Points: points}})

	for _, loc := range w.locations.Locations() {
		w.begin()
		go w.fetchCity(m, loc)
	}
}

func (w *Widget) fetchCity(m *mount, loc airquality.Location) {
	defer w.settle(m)

	pm25, err := w.provider.FetchPM25(m.ctx, loc)
	if err != nil {
		w.logger.Debug("city query failed", "city", loc.Name, "error", err)
		return
	}

	reading := airquality.NewCityReading(loc, pm25)
	marker := mapview.MarkerFor(reading)
	if err := m.view.AddMarker(marker); err != nil {
		return
	}

	w.mu.Lock()
	m.readings = append(m.readings, reading)
	w.mu.Unlock()

	metrics.MarkersAdded.WithLabelValues(string(reading.Category)).Inc()
	w.emit(m, Event{Type: EventMarker, Marker: &marker, Reading: &reading})
}

// begin accounts for one dispatched query.
func (w *Widget) begin() {
	w.wg.Add(1)
	w.pending.Add(1)
	metrics.PendingRequests.Inc()
}

// settle accounts for one finished query, success or failure. The last one
// to settle moves the mount to Idle.
func (w *Widget) settle(m *mount) {
	defer w.wg.Done()

	metrics.PendingRequests.Dec()
	if w.pending.Add(-1) > 0 {
		return
	}

	w.setState(m, Idle)
	close(m.idle)
	w.emit(m, loadingEvent(false))
	w.emit(m, Event{Type: EventIdle})
}

func (w *Widget) setState(m *mount, s State) {
	w.mu.Lock()
	if w.cur == m {
		w.state = s
	}
	w.mu.Unlock()
}

// emit delivers e unless the mount has been torn down.
func (w *Widget) emit(m *mount, e Event) {
	if w.listener == nil || m.ctx.Err() != nil {
		return
	}
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()
	w.listener(e)
}
