package globe

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/john-huang-121/D3-globe/internal/airports"
	"github.com/john-huang-121/D3-globe/internal/config"
	"github.com/john-huang-121/D3-globe/internal/geo"
	"github.com/john-huang-121/D3-globe/pkg/logger"
	"github.com/paulmach/orb"
)

// ErrLoopStopped is returned by requests made after the loop has exited
var ErrLoopStopped = errors.New("render loop stopped")

// Publisher receives every frame the loop renders
type Publisher interface {
	Publish(frame *Frame)
}

type eventKind int

const (
	eventDragStart eventKind = iota
	eventDragMove
	eventDragEnd
	eventTick
	eventLand
	eventAirports
	eventSync
	eventState
	eventData
)

type event struct {
	kind     eventKind
	owner    string
	dx, dy   float64
	land     orb.MultiPolygon
	airports []airports.Airport
	reply    chan any
}

// State is a point-in-time summary of the renderer
type State struct {
	Seq           uint64       `json:"seq"`
	Rotation      geo.Rotation `json:"rotation"`
	Center        geo.LonLat   `json:"center"`
	Dragging      bool         `json:"dragging"`
	Draggers      int          `json:"draggers"`
	Markers       int          `json:"markers"`
	Airports      int          `json:"airports"`
	LandPolygons  int          `json:"land_polygons"`
	DataVersion   uint64       `json:"data_version"`
	DroppedEvents uint64       `json:"dropped_events"`
	Variant       string       `json:"variant"`
	TickSource    string       `json:"tick_source"`
}

// Data is the geometry currently installed in the renderer. Both slices
// are shared and must not be modified.
type Data struct {
	Land     orb.MultiPolygon
	Airports []airports.Airport
}

// Loop serialises every input onto the goroutine that owns the Renderer.
// Drag moves and ticks are posted without blocking and may be dropped;
// drag starts and ends, data installs and queries wait for room.
type Loop struct {
	renderer    *Renderer
	config      config.GlobeConfig
	events      chan event
	publishers  []Publisher
	minInterval time.Duration
	lastTick    time.Time
	now         func() time.Time
	dropped     atomic.Uint64
	done        chan struct{}
	logger      *logger.Logger
}

// NewLoop creates a loop around renderer
func NewLoop(renderer *Renderer, cfg config.GlobeConfig, log *logger.Logger) *Loop {
	rate := cfg.MaxFrameRate
	if rate <= 0 {
		rate = 60
	}
	size := cfg.EventQueueSize
	if size <= 0 {
		size = 256
	}
	return &Loop{
		renderer:    renderer,
		config:      cfg,
		events:      make(chan event, size),
		minInterval: time.Second / time.Duration(rate),
		now:         time.Now,
		done:        make(chan struct{}),
		logger:      log.Named("render-loop"),
	}
}

// Subscribe adds a frame publisher. It must be called before Run.
func (l *Loop) Subscribe(p Publisher) {
	l.publishers = append(l.publishers, p)
}

// Run renders the first frame and then processes events until ctx is cancelled
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	l.logger.Info("Render loop started",
		logger.String("variant", l.config.Variant),
		logger.String("tick_source", l.config.TickSource),
		logger.Duration("min_interval", l.minInterval))

	l.publish(l.renderer.Render())

	var ticks <-chan time.Time
	if l.config.TickSource == config.TickSourceServer {
		ticker := time.NewTicker(l.minInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Render loop stopped", logger.Uint64("dropped_events", l.dropped.Load()))
			return nil
		case ev := <-l.events:
			l.handle(ev)
		case <-ticks:
			l.tick()
		}
	}
}

func (l *Loop) handle(ev event) {
	switch ev.kind {
	case eventDragStart:
		l.renderer.DragStart(ev.owner)
	case eventDragMove:
		if l.renderer.DragMove(ev.owner, ev.dx, ev.dy) {
			l.publish(l.renderer.Render())
		}
	case eventDragEnd:
		l.renderer.DragEnd(ev.owner)
	case eventTick:
		if l.config.TickSource == config.TickSourceClient {
			l.tick()
		}
	case eventLand:
		l.renderer.SetLand(ev.land)
		l.publish(l.renderer.Render())
	case eventAirports:
		l.renderer.SetAirports(ev.airports)
		l.publish(l.renderer.Render())
	case eventSync:
		ev.reply <- l.renderer.Snapshot()
	case eventState:
		ev.reply <- l.state()
	case eventData:
		ev.reply <- Data{Land: l.renderer.land, Airports: l.renderer.airports}
	}
}

// tick applies one idle step unless the previous one was too recent
func (l *Loop) tick() {
	now := l.now()
	if !l.lastTick.IsZero() && now.Sub(l.lastTick) < l.minInterval {
		return
	}
	l.lastTick = now
	if l.renderer.Tick() {
		l.publish(l.renderer.Render())
	}
}

func (l *Loop) publish(frame *Frame) {
	for _, p := range l.publishers {
		p.Publish(frame)
	}
}

func (l *Loop) state() State {
	frame := l.renderer.frame()
	return State{
		Seq:           frame.Seq,
		Rotation:      frame.Rotation,
		Center:        frame.Center,
		Dragging:      frame.Dragging,
		Draggers:      l.renderer.Draggers(),
		Markers:       l.renderer.MarkerCount(),
		Airports:      len(l.renderer.airports),
		LandPolygons:  len(l.renderer.land),
		DataVersion:   l.renderer.DataVersion(),
		DroppedEvents: l.dropped.Load(),
		Variant:       l.config.Variant,
		TickSource:    l.config.TickSource,
	}
}

// post queues ev without blocking, dropping it when the queue is full
func (l *Loop) post(ev event) bool {
	select {
	case l.events <- ev:
		return true
	default:
		n := l.dropped.Add(1)
		l.logger.Warn("Event queue full, dropping event",
			logger.Int("kind", int(ev.kind)),
			logger.Uint64("dropped_total", n))
		return false
	}
}

// send queues ev, waiting for room
func (l *Loop) send(ctx context.Context, ev event) error {
	select {
	case l.events <- ev:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) request(ctx context.Context, kind eventKind) (any, error) {
	ev := event{kind: kind, reply: make(chan any, 1)}
	if err := l.send(ctx, ev); err != nil {
		return nil, err
	}
	select {
	case v := <-ev.reply:
		return v, nil
	case <-l.done:
		return nil, ErrLoopStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DragStart begins a drag for owner, waiting for room in the queue
func (l *Loop) DragStart(ctx context.Context, owner string) error {
	return l.send(ctx, event{kind: eventDragStart, owner: owner})
}

// DragMove posts a pointer delta from owner
func (l *Loop) DragMove(owner string, dx, dy float64) bool {
	return l.post(event{kind: eventDragMove, owner: owner, dx: dx, dy: dy})
}

// DragEnd ends owner's drag, waiting for room in the queue
func (l *Loop) DragEnd(ctx context.Context, owner string) error {
	return l.send(ctx, event{kind: eventDragEnd, owner: owner})
}

// Tick posts a display refresh
func (l *Loop) Tick() bool { return l.post(event{kind: eventTick}) }

// SetLand installs land geometry and re-renders
func (l *Loop) SetLand(ctx context.Context, land orb.MultiPolygon) error {
	return l.send(ctx, event{kind: eventLand, land: land})
}

// SetAirports installs the airport list and re-renders
func (l *Loop) SetAirports(ctx context.Context, list []airports.Airport) error {
	return l.send(ctx, event{kind: eventAirports, airports: list})
}

// Sync returns a full snapshot of the current picture
func (l *Loop) Sync(ctx context.Context) (*Frame, error) {
	v, err := l.request(ctx, eventSync)
	if err != nil {
		return nil, err
	}
	return v.(*Frame), nil
}

// State returns a summary of the renderer
func (l *Loop) State(ctx context.Context) (State, error) {
	v, err := l.request(ctx, eventState)
	if err != nil {
		return State{}, err
	}
	return v.(State), nil
}

// Data returns the installed land and airports
func (l *Loop) Data(ctx context.Context) (Data, error) {
	v, err := l.request(ctx, eventData)
	if err != nil {
		return Data{}, err
	}
	return v.(Data), nil
}

// RenderAt renders a full snapshot of data under rotation on a throwaway
// renderer, leaving the live one untouched.
func RenderAt(cfg config.GlobeConfig, rotation geo.Rotation, data Data, log *logger.Logger) *Frame {
	r := NewRenderer(cfg, log)
	r.land = data.Land
	r.airports = data.Airports
	r.setRotation(rotation)
	return r.Render()
}
