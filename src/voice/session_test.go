package voice

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/elee1766/talkback/src/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	chunks  chan []byte
	stopped chan struct{}
	once    sync.Once

	mu    sync.Mutex
	stops int
}

func newFakeStream() *fakeStream {
	return &fakeStream{chunks: make(chan []byte, 64), stopped: make(chan struct{})}
}

func (f *fakeStream) Read(p []byte) (int, error) {
	// queued audio is drained before a stop is observed
	select {
	case c, ok := <-f.chunks:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, c), nil
	default:
	}
	select {
	case c, ok := <-f.chunks:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, c), nil
	case <-f.stopped:
		return 0, io.EOF
	}
}

func (f *fakeStream) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.once.Do(func() { close(f.stopped) })
	return nil
}

func (f *fakeStream) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeCapture struct {
	stream *fakeStream
	err    error
	cfg    audio.CaptureConfig
}

func (c *fakeCapture) Start(_ context.Context, cfg audio.CaptureConfig) (audio.Stream, error) {
	c.cfg = cfg
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

type recordingSink struct {
	mu     sync.Mutex
	frames []audio.Frame
	err    error
}

func (s *recordingSink) SendFrame(frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func ramp(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(i)
	}
	return out
}

func joined(frames []audio.Frame) []int16 {
	var out []int16
	for _, f := range frames {
		out = append(out, f.Samples...)
	}
	return out
}

func TestBufferedCaptureReturnsUtterance(t *testing.T) {
	stream := newFakeStream()
	session := NewSession(&fakeCapture{stream: stream}, nil, Options{
		Mode:          ModeBuffered,
		FrameDuration: 10 * time.Millisecond,
	})
	defer session.Dispose()

	require.NoError(t, session.Start(context.Background(), Callbacks{}))

	pcm := audio.EncodePCM16(ramp(350))
	stream.chunks <- pcm[:301]
	stream.chunks <- pcm[301:]

	frames, err := session.Stop()
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, ramp(350), joined(frames))
	for i, f := range frames {
		assert.Equal(t, i, f.Seq)
		assert.Equal(t, audio.CaptureSampleRate, f.SampleRate)
	}

	again, err := session.Stop()
	require.NoError(t, err)
	assert.Equal(t, frames, again)
}

func TestStreamingCapturePushesFramesInOrder(t *testing.T) {
	stream := newFakeStream()
	sink := &recordingSink{}
	session := NewSession(&fakeCapture{stream: stream}, sink, Options{
		Mode:          ModeStreaming,
		FrameDuration: 10 * time.Millisecond,
	})
	defer session.Dispose()

	var seen []int
	require.NoError(t, session.Start(context.Background(), Callbacks{
		OnFrame: func(f audio.Frame) { seen = append(seen, f.Seq) },
	}))

	stream.chunks <- audio.EncodePCM16(ramp(500))

	frames, err := session.Stop()
	require.NoError(t, err)
	assert.Nil(t, frames)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.frames, 4)
	assert.Equal(t, ramp(500), joined(sink.frames))
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
}

func TestCaptureResamplesToTargetRate(t *testing.T) {
	stream := newFakeStream()
	capture := &fakeCapture{stream: stream}
	session := NewSession(capture, nil, Options{
		Device:        audio.CaptureConfig{SampleRate: 48000},
		TargetRate:    16000,
		FrameDuration: 20 * time.Millisecond,
	})
	defer session.Dispose()

	require.NoError(t, session.Start(context.Background(), Callbacks{}))
	assert.Equal(t, 48000, capture.cfg.SampleRate)

	stream.chunks <- audio.EncodePCM16(make([]int16, 960))
	frames, err := session.Stop()
	require.NoError(t, err)
	require.NotEmpty(t, frames)
	assert.InDelta(t, 320, len(joined(frames)), 2)
	for _, f := range frames {
		assert.Equal(t, 16000, f.SampleRate)
	}
}

func TestStreamingRequiresSink(t *testing.T) {
	session := NewSession(&fakeCapture{stream: newFakeStream()}, nil, Options{Mode: ModeStreaming})
	assert.ErrorIs(t, session.Start(context.Background(), Callbacks{}), ErrNoSink)
}

func TestDeviceErrorsAreReturnedClassified(t *testing.T) {
	for _, want := range []error{audio.ErrPermissionDenied, audio.ErrDeviceNotFound} {
		sink := &recordingSink{}
		session := NewSession(&fakeCapture{err: want}, sink, Options{Mode: ModeStreaming})

		err := session.Start(context.Background(), Callbacks{})
		assert.ErrorIs(t, err, want)

		_, err = session.Stop()
		assert.ErrorIs(t, err, ErrNotStarted)

		session.Dispose()
		session.Dispose()
		assert.Empty(t, sink.frames)
	}
}

func TestDisposeIsIdempotentFromAnyState(t *testing.T) {
	t.Run("never started", func(t *testing.T) {
		session := NewSession(&fakeCapture{stream: newFakeStream()}, nil, Options{})
		session.Dispose()
		session.Dispose()
		assert.ErrorIs(t, session.Start(context.Background(), Callbacks{}), ErrDisposed)
	})

	t.Run("recording", func(t *testing.T) {
		stream := newFakeStream()
		session := NewSession(&fakeCapture{stream: stream}, nil, Options{})
		require.NoError(t, session.Start(context.Background(), Callbacks{}))

		var wg sync.WaitGroup
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				session.Dispose()
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, stream.stopCount())
		_, err := session.Stop()
		assert.ErrorIs(t, err, ErrDisposed)
	})

	t.Run("after stop", func(t *testing.T) {
		stream := newFakeStream()
		session := NewSession(&fakeCapture{stream: stream}, nil, Options{})
		require.NoError(t, session.Start(context.Background(), Callbacks{}))
		_, err := session.Stop()
		require.NoError(t, err)

		session.Dispose()
		session.Dispose()
		assert.ErrorIs(t, session.Start(context.Background(), Callbacks{}), ErrDisposed)
	})
}

func TestLevelsAreReported(t *testing.T) {
	stream := newFakeStream()
	session := NewSession(&fakeCapture{stream: stream}, nil, Options{
		FrameDuration: 50 * time.Millisecond,
		LevelWindow:   50 * time.Millisecond,
	})
	defer session.Dispose()

	levels := make(chan int, 8)
	require.NoError(t, session.Start(context.Background(), Callbacks{
		OnAudioLevel: func(level int) { levels <- level },
	}))

	loud := make([]int16, 800)
	for i := range loud {
		loud[i] = 32767
	}
	stream.chunks <- audio.EncodePCM16(loud)

	select {
	case level := <-levels:
		assert.Equal(t, 100, level)
	case <-time.After(2 * time.Second):
		t.Fatal("no level reported")
	}
	_, err := session.Stop()
	require.NoError(t, err)
}

func TestRecorderExitIsReportedOnce(t *testing.T) {
	stream := newFakeStream()
	session := NewSession(&fakeCapture{stream: stream}, nil, Options{})
	defer session.Dispose()

	errs := make(chan error, 4)
	require.NoError(t, session.Start(context.Background(), Callbacks{
		OnError: func(err error) { errs <- err },
	}))
	close(stream.chunks)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, audio.ErrCaptureStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("recorder exit not reported")
	}

	_, err := session.Stop()
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestSinkFailureStopsStreaming(t *testing.T) {
	stream := newFakeStream()
	sink := &recordingSink{err: errors.New("socket gone")}
	session := NewSession(&fakeCapture{stream: stream}, sink, Options{
		Mode:          ModeStreaming,
		FrameDuration: 10 * time.Millisecond,
	})
	defer session.Dispose()

	var mu sync.Mutex
	var errs []error
	require.NoError(t, session.Start(context.Background(), Callbacks{
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	}))
	stream.chunks <- audio.EncodePCM16(ramp(800))

	_, err := session.Stop()
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "socket gone")
}
