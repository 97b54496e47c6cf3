// Package voice owns the microphone for one push-to-talk gesture. It frames
// and resamples captured audio, reports a running input level and either
// buffers the utterance or streams frames to a sink as they are captured.
package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/elee1766/talkback/src/audio"
)

// Mode selects how captured frames leave the session.
type Mode string

const (
	// ModeBuffered keeps the whole utterance and returns it from Stop.
	ModeBuffered Mode = "buffered"
	// ModeStreaming pushes every frame to the sink as soon as it is framed.
	ModeStreaming Mode = "streaming"
)

const (
	defaultFrameDuration = 40 * time.Millisecond
	defaultLevelWindow   = 50 * time.Millisecond
	readChunk            = 4096
	levelQueue           = 16
)

// FrameSink receives frames in capture order. The audio transport session
// implements it.
type FrameSink interface {
	SendFrame(frame audio.Frame) error
}

// Options configures a capture session.
type Options struct {
	Mode Mode

	// Device describes the recorder input. Device.SampleRate is the rate the
	// recorder produces, which may differ from TargetRate.
	Device audio.CaptureConfig

	TargetRate    int
	FrameDuration time.Duration
	LevelWindow   time.Duration
	Logger        *slog.Logger
}

// Callbacks receive capture progress. OnAudioLevel runs on the level
// goroutine and OnFrame and OnError on the capture goroutine.
type Callbacks struct {
	OnAudioLevel func(level int)
	OnFrame      func(frame audio.Frame)

	// OnError reports a failure after a successful Start, such as the
	// recorder dying or the sink rejecting a frame. It fires at most once.
	OnError func(err error)
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
	stateDisposed
)

// Session is one capture from Start to Stop. It is not reusable.
type Session struct {
	capture audio.Capture
	sink    FrameSink
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	state    state
	stream   audio.Stream
	cb       Callbacks
	frames   []audio.Frame
	stopping bool

	captureDone chan struct{}
	levels      chan []int16
	levelDone   chan struct{}

	errOnce  sync.Once
	disposed sync.Once
}

// NewSession creates a capture session. sink may be nil in buffered mode.
func NewSession(capture audio.Capture, sink FrameSink, opts Options) *Session {
	if opts.Mode == "" {
		opts.Mode = ModeBuffered
	}
	if opts.TargetRate <= 0 {
		opts.TargetRate = audio.CaptureSampleRate
	}
	if opts.Device.SampleRate <= 0 {
		opts.Device.SampleRate = opts.TargetRate
	}
	if opts.FrameDuration <= 0 {
		opts.FrameDuration = defaultFrameDuration
	}
	if opts.LevelWindow <= 0 {
		opts.LevelWindow = defaultLevelWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		capture: capture,
		sink:    sink,
		opts:    opts,
		logger:  logger.With("component", "voice_capture"),
	}
}

// Mode reports the session's delivery mode.
func (s *Session) Mode() Mode {
	return s.opts.Mode
}

// Start acquires the microphone and begins capturing. Device failures come
// back classified as audio.ErrPermissionDenied or audio.ErrDeviceNotFound.
func (s *Session) Start(ctx context.Context, cb Callbacks) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateDisposed:
		return ErrDisposed
	case stateIdle:
	default:
		return ErrAlreadyStarted
	}
	if s.opts.Mode == ModeStreaming && s.sink == nil {
		return ErrNoSink
	}

	framer, err := audio.NewFramer(s.opts.Device.SampleRate, s.opts.TargetRate, s.opts.FrameDuration)
	if err != nil {
		return fmt.Errorf("failed to configure framing: %w", err)
	}

	stream, err := s.capture.Start(ctx, s.opts.Device)
	if err != nil {
		s.logger.Warn("microphone unavailable", "error", err)
		return err
	}

	s.state = stateRunning
	s.stream = stream
	s.cb = cb
	s.captureDone = make(chan struct{})
	s.levels = make(chan []int16, levelQueue)
	s.levelDone = make(chan struct{})

	go s.levelLoop(audio.NewLevelMeter(s.opts.TargetRate, s.opts.LevelWindow))
	go s.captureLoop(framer)

	s.logger.Debug("capture started", "mode", s.opts.Mode, "device_rate", s.opts.Device.SampleRate, "target_rate", s.opts.TargetRate)
	return nil
}

// Stop ends the capture and waits until every captured frame has been
// delivered. In buffered mode it returns the utterance; in streaming mode the
// frames already went to the sink and the result is nil.
func (s *Session) Stop() ([]audio.Frame, error) {
	s.mu.Lock()
	switch s.state {
	case stateDisposed:
		s.mu.Unlock()
		return nil, ErrDisposed
	case stateIdle:
		s.mu.Unlock()
		return nil, ErrNotStarted
	case stateStopped:
		frames := s.bufferedLocked()
		s.mu.Unlock()
		return frames, nil
	}
	s.state = stateStopped
	s.mu.Unlock()

	err := s.halt()

	s.mu.Lock()
	frames := s.bufferedLocked()
	s.mu.Unlock()

	s.logger.Debug("capture stopped", "frames", len(frames))
	return frames, err
}

// Dispose releases the microphone whatever state the session is in. It is
// safe to call repeatedly and concurrently with Stop.
func (s *Session) Dispose() {
	s.disposed.Do(func() {
		s.mu.Lock()
		running := s.state == stateRunning
		wasStopped := s.state == stateStopped
		s.state = stateDisposed
		s.frames = nil
		s.mu.Unlock()

		if running || wasStopped {
			if err := s.halt(); err != nil {
				s.logger.Debug("recorder exited with error", "error", err)
			}
		}
	})
}

func (s *Session) bufferedLocked() []audio.Frame {
	if s.opts.Mode != ModeBuffered {
		return nil
	}
	return append([]audio.Frame(nil), s.frames...)
}

// halt stops the recorder and waits for both loops. Concurrent callers all
// wait for the same teardown.
func (s *Session) halt() error {
	s.mu.Lock()
	s.stopping = true
	stream := s.stream
	s.mu.Unlock()

	var err error
	if stream != nil {
		err = stream.Stop()
	}
	<-s.captureDone
	<-s.levelDone
	return err
}

func (s *Session) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *Session) captureLoop(framer *audio.Framer) {
	defer close(s.captureDone)
	defer close(s.levels)

	sinkFailed := false
	deliver := func(frames []audio.Frame) {
		for _, frame := range frames {
			s.observeLevel(frame.Samples)

			if s.opts.Mode == ModeStreaming && !sinkFailed {
				if err := s.sink.SendFrame(frame); err != nil {
					sinkFailed = true
					s.fail(fmt.Errorf("failed to stream audio: %w", err))
				}
			} else if s.opts.Mode == ModeBuffered {
				s.mu.Lock()
				if s.state != stateDisposed {
					s.frames = append(s.frames, frame)
				}
				s.mu.Unlock()
			}

			if s.cb.OnFrame != nil {
				s.cb.OnFrame(frame)
			}
		}
	}

	buf := make([]byte, readChunk)
	for {
		n, err := s.stream.Read(buf)
		if n > 0 {
			deliver(framer.Write(buf[:n]))
		}
		if err != nil {
			if !s.isStopping() {
				if errors.Is(err, io.EOF) {
					err = audio.ErrCaptureStopped
				}
				s.fail(fmt.Errorf("audio capture ended: %w", err))
			}
			deliver(framer.Flush())
			return
		}
	}
}

// observeLevel hands samples to the level goroutine without blocking capture;
// when the level goroutine falls behind, samples are dropped from metering only.
func (s *Session) observeLevel(samples []int16) {
	select {
	case s.levels <- samples:
	default:
	}
}

func (s *Session) levelLoop(meter *audio.LevelMeter) {
	defer close(s.levelDone)
	for samples := range s.levels {
		for _, level := range meter.Add(samples) {
			if s.cb.OnAudioLevel != nil {
				s.cb.OnAudioLevel(level)
			}
		}
	}
}

func (s *Session) fail(err error) {
	s.errOnce.Do(func() {
		s.logger.Warn("capture failed", "error", err)
		if s.cb.OnError != nil {
			s.cb.OnError(err)
		}
	})
}
