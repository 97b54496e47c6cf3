package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// CaptureConfig describes how the microphone should be captured.
type CaptureConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// Stream is a live capture producing raw little-endian PCM16.
type Stream interface {
	io.Reader
	Stop() error
}

// Capture acquires the input device.
type Capture interface {
	Start(ctx context.Context, cfg CaptureConfig) (Stream, error)
}

const defaultStartupGrace = 250 * time.Millisecond

// FFMPEGCapture streams microphone PCM audio using an ffmpeg subprocess.
type FFMPEGCapture struct {
	command      string
	startupGrace time.Duration
}

// NewFFMPEGCapture returns a capture running command (ffmpeg by default).
func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command, startupGrace: defaultStartupGrace}
}

// Start launches the recorder. Failures to open the device are classified
// as ErrPermissionDenied or ErrDeviceNotFound when the recorder says why.
func (c *FFMPEGCapture) Start(ctx context.Context, cfg CaptureConfig) (Stream, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = CaptureSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: recorder %q unavailable: %v", ErrDeviceNotFound, c.command, err)
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		detail := trimSpace(stderr.String())
		if kind := classifyCaptureFailure(detail); kind != nil {
			return nil, fmt.Errorf("%w: %s", kind, detail)
		}
		if err != nil {
			return nil, fmt.Errorf("recorder exited before capture started: %w: %s", err, detail)
		}
		return nil, errors.New("recorder exited before capture started")
	case <-time.After(c.startupGrace):
	}

	return &ffmpegStream{
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type ffmpegStream struct {
	stdout io.ReadCloser
	stderr *syncBuffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimSpace(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimSpace(input string) string {
	return string(bytes.TrimSpace([]byte(input)))
}

// syncBuffer guards stderr, which the exec package writes from its own goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}
