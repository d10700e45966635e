// Package board turns balance-board tilt notifications into discrete
// directional input for a polling consumer such as a game loop.
package board

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"balance-board/ble"
)

var log = logrus.WithField("component", "board")

// DefaultSamples is the moving-average window per axis.
const DefaultSamples = 5

// Connector owns the transport. *ble.Central satisfies it.
type Connector interface {
	Run(ctx context.Context, h ble.Handler) error
}

// Config holds the tuning of a Board.
type Config struct {
	Activation float64 // degrees needed to fire a direction
	Release    float64 // degrees back toward centre to release it
	Samples    int     // moving-average window per axis
}

// DefaultConfig returns the stock thresholds and window.
func DefaultConfig() Config {
	return Config{
		Activation: DefaultActivation,
		Release:    DefaultRelease,
		Samples:    DefaultSamples,
	}
}

// Snapshot is a consistent view of the board for telemetry.
type Snapshot struct {
	Pitch     float64    `json:"pitch"`
	Roll      float64    `json:"roll"`
	Direction Direction  `json:"direction"`
	State     string     `json:"state"`
	Origin    ble.Sample `json:"origin"`
	Samples   int        `json:"samples"`
	Dropped   uint64     `json:"dropped"`
}

// Board is the shared state between the BLE goroutine and polling callers.
// All exported methods are safe for concurrent use.
type Board struct {
	conn Connector

	mu         sync.Mutex
	raw        ble.Sample
	pitch      *Window
	roll       *Window
	origin     ble.Sample
	calibrated bool
	gesture    *Gesture
	state      ble.State
	err        error
	dropped    uint64
	cancel     context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once

	startOnce sync.Once
	done      chan struct{}
}

// New creates a Board fed by conn. conn may be nil when samples are
// delivered through OnNotification by the caller.
func New(conn Connector, cfg Config) (*Board, error) {
	if cfg.Samples <= 0 {
		cfg.Samples = DefaultSamples
	}
	g, err := NewGesture(cfg.Activation, cfg.Release)
	if err != nil {
		return nil, err
	}
	return &Board{
		conn:    conn,
		pitch:   NewWindow(cfg.Samples),
		roll:    NewWindow(cfg.Samples),
		gesture: g,
		state:   ble.StateIdle,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start launches the connection in the background and returns immediately.
// Calls after the first are no-ops.
func (b *Board) Start() {
	b.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		b.mu.Lock()
		b.cancel = cancel
		b.mu.Unlock()
		go b.run(ctx)
	})
}

func (b *Board) run(ctx context.Context) {
	defer close(b.done)

	var err error
	if b.conn == nil {
		err = errors.New("no connector configured")
	} else {
		err = b.conn.Run(ctx, b)
	}

	b.mu.Lock()
	b.err = err
	switch b.state {
	case ble.StateIdle, ble.StateScanning:
		b.state = ble.StateFailed
	case ble.StateConnected:
		b.state = ble.StateDisconnected
	}
	b.mu.Unlock()

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		log.Info("BLE: Background connection stopped")
	default:
		log.WithError(err).Error("BLE: Background connection failed")
	}
}

// Close stops the background connection and waits for it to tear down.
func (b *Board) Close() {
	b.startOnce.Do(func() { close(b.done) })

	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-b.done
}

// Done is closed once the background connection has stopped, or on Close
// if it was never started.
func (b *Board) Done() <-chan struct{} { return b.done }

// OnState implements ble.Handler.
func (b *Board) OnState(state ble.State) {
	b.mu.Lock()
	prev := b.state
	b.state = state
	b.mu.Unlock()

	if state == ble.StateConnected {
		b.readyOnce.Do(func() { close(b.ready) })
	}
	if prev != state {
		log.WithFields(logrus.Fields{"from": prev, "to": state}).Debug("BLE: State change")
	}
}

// OnNotification implements ble.Handler. Malformed packets are logged and
// dropped without touching any state but the drop counter.
func (b *Board) OnNotification(data []byte) {
	s, err := ble.ParseSample(data)
	if err != nil {
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		log.WithError(err).Warn("BLE: Dropping notification")
		return
	}
	b.ingest(s)
}

func (b *Board) ingest(s ble.Sample) {
	b.mu.Lock()
	b.raw = s
	b.pitch.Push(s.Pitch)
	b.roll.Push(s.Roll)

	// First accepted sample zeroes the board, once.
	first := !b.calibrated
	if first {
		b.origin = s
		b.calibrated = true
	}
	b.mu.Unlock()

	if first {
		logOrigin("Origin auto-calibrated", s)
	}
}

// ResetOrigin takes the latest raw reading as the new zero.
// Call it when the board is lying flat.
func (b *Board) ResetOrigin() {
	b.mu.Lock()
	b.origin = b.raw
	origin := b.origin
	b.mu.Unlock()

	logOrigin("Origin reset", origin)
}

func logOrigin(msg string, o ble.Sample) {
	log.WithFields(logrus.Fields{"pitch": o.Pitch, "roll": o.Roll}).Info(msg)
}

// Tilt returns the smoothed (pitch, roll) in degrees relative to the origin,
// with roll inverted so leaning right is positive. (0, 0) before any sample.
func (b *Board) Tilt() (pitch, roll float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tiltLocked()
}

// tiltLocked must be called with b.mu held.
func (b *Board) tiltLocked() (pitch, roll float64) {
	if b.pitch.Len() == 0 && b.roll.Len() == 0 {
		return 0, 0
	}
	pitch = b.pitch.Mean() - b.origin.Pitch
	roll = -(b.roll.Mean() - b.origin.Roll)
	return pitch, roll
}

// Direction resolves the current tilt and steps the gesture state machine.
// Meant to be polled once per frame.
func (b *Board) Direction() Direction {
	b.mu.Lock()
	defer b.mu.Unlock()
	pitch, roll := b.tiltLocked()
	return b.gesture.Update(pitch, roll)
}

// Snapshot returns tilt, the last emitted direction and link health
// without stepping the gesture state machine.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	pitch, roll := b.tiltLocked()
	return Snapshot{
		Pitch:     pitch,
		Roll:      roll,
		Direction: b.gesture.State(),
		State:     b.state.String(),
		Origin:    b.origin,
		Samples:   b.pitch.Len(),
		Dropped:   b.dropped,
	}
}

// IsConnected reports whether the board is currently streaming.
func (b *Board) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == ble.StateConnected
}

// State returns the connection lifecycle state.
func (b *Board) State() ble.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the error the background connection stopped with, if any.
func (b *Board) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// WaitUntilConnected blocks until the board connects, the background
// connection gives up, or timeout elapses. timeout <= 0 waits without limit,
// so a zero timeout blocks until one of the other two happens rather than
// polling once.
func (b *Board) WaitUntilConnected(timeout time.Duration) bool {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-b.ready:
	case <-b.done:
	case <-expired:
		return false
	}
	return b.IsConnected()
}
