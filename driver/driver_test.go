package driver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alimasry/typing-replay/replay"
)

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTimer) isStopped() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.stopped
}

// fakeClock records every scheduled call; tests fire them by hand.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs the oldest live timer and reports whether there was one.
func (c *fakeClock) fire() bool {
	c.mu.Lock()
	var next *fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	c.mu.Unlock()
	if next == nil {
		return false
	}
	next.f()
	return true
}

func (c *fakeClock) timer(i int) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[i]
}

func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.timers))
	for i, t := range c.timers {
		out[i] = t.delay
	}
	return out
}

func startDriver(t *testing.T, opts ...Option) (*Driver, chan Frame) {
	t.Helper()
	frames := make(chan Frame, 1024)
	d := New(SinkFunc(func(f Frame) { frames <- f }), opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	t.Cleanup(cancel)
	return d, frames
}

func recvFrame(t *testing.T, frames chan Frame) Frame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
		return Frame{}
	}
}

func assertNoFrame(t *testing.T, frames chan Frame) {
	t.Helper()
	select {
	case f := <-frames:
		t.Fatalf("unexpected frame: %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDriver_PlaysToDone(t *testing.T) {
	clock := &fakeClock{}
	d, frames := startDriver(t, WithClock(clock))

	seq := replay.MustSequence(
		replay.DiffOp{Content: "ab", Kind: replay.Equal},
		replay.DiffOp{Content: "CD", Kind: replay.Add},
		replay.DiffOp{Content: "ef", Kind: replay.Equal},
	)
	d.Start("abef", seq)

	first := recvFrame(t, frames)
	assert.Equal(t, "abef", first.Text)
	assert.Equal(t, replay.InProgress{}, first.Cursor)
	assert.Equal(t, 1, first.Step)
	assert.False(t, first.Done)

	last := first
	for !last.Done {
		require.True(t, clock.fire(), "no step pending at %v", last.Cursor)
		last = recvFrame(t, frames)
		require.NoError(t, last.Err)
	}
	assert.Equal(t, "abCDef", last.Text)
	assert.Equal(t, replay.StepCount(seq), last.Step)
	assert.False(t, clock.fire(), "timer armed after Done")
	assert.Equal(t, last, d.Snapshot())

	delays := clock.delays()
	require.NotEmpty(t, delays)
	assert.Zero(t, delays[0])
	for _, dl := range delays[1:] {
		assert.Equal(t, replay.StepDelay, dl)
	}
}

func TestDriver_EmptySequence(t *testing.T) {
	clock := &fakeClock{}
	d, frames := startDriver(t, WithClock(clock))

	d.Start("hello", replay.Sequence{})
	f := recvFrame(t, frames)
	assert.True(t, f.Done)
	assert.Equal(t, "hello", f.Text)
	assert.Equal(t, replay.Done{}, f.Cursor)
	assert.False(t, clock.fire())
}

func TestDriver_RestartDiscardsProgress(t *testing.T) {
	clock := &fakeClock{}
	d, frames := startDriver(t, WithClock(clock))

	d.Start("", replay.MustSequence(replay.DiffOp{Content: "first", Kind: replay.Add}))
	f := recvFrame(t, frames)
	require.Equal(t, uint64(1), f.Generation)

	d.Start("abc", replay.MustSequence(
		replay.DiffOp{Content: "a", Kind: replay.Equal},
		replay.DiffOp{Content: "b", Kind: replay.Delete},
		replay.DiffOp{Content: "c", Kind: replay.Equal},
	))
	f = recvFrame(t, frames)
	assert.Equal(t, uint64(2), f.Generation)
	assert.Equal(t, "abc", f.Text)
	assert.Equal(t, 1, f.Step)
	assert.True(t, clock.timer(0).isStopped())

	// A late tick from the first run is dropped.
	clock.timer(0).f()
	assertNoFrame(t, frames)

	last := f
	for !last.Done {
		require.True(t, clock.fire())
		last = recvFrame(t, frames)
		assert.Equal(t, uint64(2), last.Generation)
	}
	assert.Equal(t, "ac", last.Text)
}

func TestDriver_CancelStopsPublishing(t *testing.T) {
	clock := &fakeClock{}
	d, frames := startDriver(t, WithClock(clock))

	d.Start("", replay.MustSequence(replay.DiffOp{Content: "typing", Kind: replay.Add}))
	f := recvFrame(t, frames)

	d.Cancel()
	pending := clock.timer(0)
	require.Eventually(t, pending.isStopped, time.Second, 5*time.Millisecond)

	pending.f()
	assertNoFrame(t, frames)
	assert.False(t, clock.fire())
	assert.Equal(t, f, d.Snapshot())
}

func TestDriver_AbortsOnInvalidInput(t *testing.T) {
	clock := &fakeClock{}
	d, frames := startDriver(t, WithClock(clock))

	// The equal run is longer than the buffer it is replayed over.
	d.Start("a", replay.MustSequence(replay.DiffOp{Content: "abc", Kind: replay.Equal}))
	recvFrame(t, frames)
	require.True(t, clock.fire())

	f := recvFrame(t, frames)
	require.ErrorIs(t, f.Err, replay.ErrInvalidCursor)
	assert.False(t, f.Done)
	assert.Equal(t, "a", f.Text)
	assert.False(t, clock.fire())
}

func TestDriver_Speed(t *testing.T) {
	clock := &fakeClock{}
	d, frames := startDriver(t, WithClock(clock), WithSpeed(2))

	d.Start("", replay.MustSequence(replay.DiffOp{Content: "ab", Kind: replay.Add}))
	recvFrame(t, frames)
	require.True(t, clock.fire())
	recvFrame(t, frames)

	delays := clock.delays()
	require.Len(t, delays, 2)
	assert.Zero(t, delays[0])
	assert.Equal(t, replay.StepDelay/2, delays[1])
}

func TestDriver_WallClock(t *testing.T) {
	d, frames := startDriver(t, WithSpeed(100))

	d.Start("", replay.MustSequence(replay.DiffOp{Content: "x\ny", Kind: replay.Add}))
	var texts []string
	for {
		f := recvFrame(t, frames)
		require.NoError(t, f.Err)
		texts = append(texts, f.Text)
		if f.Done {
			break
		}
	}
	assert.Equal(t, "x\ny", texts[len(texts)-1])
	assert.Contains(t, texts, "x\n")
}

func TestDriver_StoppedRunIgnoresRequests(t *testing.T) {
	d := New(SinkFunc(func(Frame) { t.Error("frame published after Run returned") }))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	// Neither call blocks nor publishes once the loop is gone.
	for i := 0; i < 32; i++ {
		d.Start("x", replay.Sequence{})
		d.Cancel()
	}
}

// runQueued starts the loop only after the caller has queued its requests.
func runQueued(t *testing.T, d *Driver) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	t.Cleanup(cancel)
}

func TestDriver_StartAfterCancelPlays(t *testing.T) {
	for i := 0; i < 20; i++ {
		clock := &fakeClock{}
		frames := make(chan Frame, 64)
		d := New(SinkFunc(func(f Frame) { frames <- f }), WithClock(clock))

		d.Cancel()
		d.Start("", replay.MustSequence(replay.DiffOp{Content: "ab", Kind: replay.Add}))
		runQueued(t, d)

		f := recvFrame(t, frames)
		require.Equal(t, 1, f.Step)
		require.Eventually(t, clock.fire, time.Second, time.Millisecond)
		f = recvFrame(t, frames)
		assert.Equal(t, 2, f.Step, "run %d", i)
	}
}

func TestDriver_CancelAfterStartSilences(t *testing.T) {
	for i := 0; i < 20; i++ {
		clock := &fakeClock{}
		frames := make(chan Frame, 64)
		d := New(SinkFunc(func(f Frame) { frames <- f }), WithClock(clock))

		d.Start("", replay.MustSequence(replay.DiffOp{Content: "ab", Kind: replay.Add}))
		d.Cancel()
		runQueued(t, d)

		// The start publishes its Init frame, then the cancel stops the run.
		f := recvFrame(t, frames)
		require.Equal(t, 1, f.Step, "run %d", i)
		require.Eventually(t, clock.timer(0).isStopped, time.Second, time.Millisecond)
		clock.timer(0).f()
		assertNoFrame(t, frames)
	}
}
