// Package driver runs a replay animation in real time: it owns the live cursor
// and buffer, steps the replay machine on a timer and publishes every buffer
// state to a Sink.
package driver

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/alimasry/typing-replay/replay"
)

// Frame is one published animation state.
type Frame struct {
	Generation uint64 // identifies the animation run; bumped by Start and Cancel
	Step       int    // transitions performed so far in this run
	Text       string
	Cursor     replay.Cursor
	Edit       *replay.Edit // change from the previous frame, nil if none
	Done       bool
	Err        error // set on the final frame of an aborted run
}

// Sink receives frames on the driver goroutine. Publish must not block.
type Sink interface {
	Publish(Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Frame)

func (f SinkFunc) Publish(fr Frame) { f(fr) }

// request is a Start, or a Cancel when cancel is set. Both share one queue so
// the loop sees them in the order they were made.
type request struct {
	cancel bool
	text   string
	seq    replay.Sequence
}

// Driver animates one sequence at a time. All state is owned by the Run
// goroutine; Start and Cancel only post requests to it.
type Driver struct {
	sink  Sink
	clock Clock
	speed float64

	requests chan request
	ticks    chan uint64
	quit     chan struct{}

	// Owned by Run.
	gen    uint64
	active bool
	seq    replay.Sequence
	cursor replay.Cursor
	buf    []rune
	step   int
	timer  Timer

	mu   sync.RWMutex
	last Frame
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock replaces the wall clock used to schedule steps.
func WithClock(c Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithSpeed scales playback: 2 halves every delay, 0.5 doubles it.
// Non-positive values are ignored.
func WithSpeed(f float64) Option {
	return func(d *Driver) {
		if f > 0 {
			d.speed = f
		}
	}
}

func New(sink Sink, opts ...Option) *Driver {
	d := &Driver{
		sink:   sink,
		clock:  wallClock{},
		speed:  1,
		requests: make(chan request, 32),
		ticks:    make(chan uint64, 1),
		quit:     make(chan struct{}),
		cursor:   replay.Done{},
		last:     Frame{Cursor: replay.Init{}},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run is the driver's main loop. It returns when ctx is cancelled, after which
// no further frames are published.
func (d *Driver) Run(ctx context.Context) {
	defer close(d.quit)
	for {
		select {
		case req := <-d.requests:
			if req.cancel {
				d.handleCancel()
			} else {
				d.handleStart(req)
			}
		case gen := <-d.ticks:
			d.handleTick(gen)
		case <-ctx.Done():
			d.handleCancel()
			return
		}
	}
}

// Start replaces whatever is playing with a fresh animation of seq over text.
func (d *Driver) Start(text string, seq replay.Sequence) {
	select {
	case d.requests <- request{text: text, seq: seq}:
	case <-d.quit:
	}
}

// Cancel stops the current animation. No frame is published for it afterwards.
func (d *Driver) Cancel() {
	select {
	case d.requests <- request{cancel: true}:
	case <-d.quit:
	}
}

// Snapshot returns the most recently published frame.
func (d *Driver) Snapshot() Frame {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

func (d *Driver) handleStart(req request) {
	d.stopTimer()
	d.gen++
	d.active = true
	d.seq = req.seq
	d.cursor = replay.Init{}
	d.buf = []rune(req.text)
	d.step = 0
	d.advance()
}

func (d *Driver) handleCancel() {
	d.stopTimer()
	d.gen++
	d.active = false
}

func (d *Driver) handleTick(gen uint64) {
	if gen != d.gen || !d.active {
		// Fired after a cancel or restart.
		return
	}
	d.timer = nil
	d.advance()
}

func (d *Driver) advance() {
	tr, err := replay.Step(d.seq, d.cursor, d.buf)
	if err != nil {
		log.Printf("driver: animation %d aborted at step %d: %v", d.gen, d.step, err)
		d.active = false
		d.publish(Frame{Generation: d.gen, Step: d.step, Text: string(d.buf), Cursor: d.cursor, Err: err})
		return
	}
	d.cursor, d.buf = tr.Cursor, tr.Buffer
	d.step++

	done := replay.IsDone(d.cursor)
	if done {
		d.active = false
	} else {
		// Arm before publishing so the next tick is pending once the frame is out.
		d.schedule(tr.Delay)
	}
	d.publish(Frame{
		Generation: d.gen,
		Step:       d.step,
		Text:       string(d.buf),
		Cursor:     d.cursor,
		Edit:       tr.Edit,
		Done:       done,
	})
}

func (d *Driver) schedule(delay time.Duration) {
	gen := d.gen
	d.timer = d.clock.AfterFunc(time.Duration(float64(delay)/d.speed), func() {
		select {
		case d.ticks <- gen:
		case <-d.quit:
		}
	})
}

func (d *Driver) stopTimer() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Driver) publish(f Frame) {
	d.mu.Lock()
	d.last = f
	d.mu.Unlock()
	d.sink.Publish(f)
}
