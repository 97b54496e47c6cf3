package audiotransport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/elee1766/talkback/src/audio"
	"github.com/elee1766/talkback/src/wire"
	"github.com/gorilla/websocket"
)

const (
	outboxSize   = 256
	writeTimeout = 5 * time.Second
)

type outbound struct {
	messageType int
	data        []byte
}

// Session is one open voice channel. Control messages and audio frames share
// a single queue drained by one writer, so their relative order is kept on
// the wire.
type Session struct {
	conn   *websocket.Conn
	url    string
	cb     Callbacks
	logger *slog.Logger

	outbox    chan outbound
	done      chan struct{}
	writerEnd chan struct{}
	readerEnd chan struct{}
	closeOnce sync.Once

	mu           sync.Mutex
	recording    bool
	stopNotified bool
	closing      bool

	errMu    sync.Mutex
	err      error
	reported bool
}

func newSession(conn *websocket.Conn, url string, cb Callbacks, logger *slog.Logger) *Session {
	s := &Session{
		conn:      conn,
		url:       url,
		cb:        cb,
		logger:    logger,
		outbox:    make(chan outbound, outboxSize),
		done:      make(chan struct{}),
		writerEnd: make(chan struct{}),
		readerEnd: make(chan struct{}),
	}
	go s.writeLoop()
	go s.readLoop()
	return s
}

// StartRecording asks the server to begin recognizing frames captured at
// sampleRate. OnRecordingStart fires once the server acknowledges.
func (s *Session) StartRecording(sampleRate int) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.recording {
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	s.recording = true
	s.stopNotified = false
	s.mu.Unlock()

	return s.sendJSON(wire.StartControl(sampleRate))
}

// SendFrame queues one audio frame. Frames go out in the order they are queued.
func (s *Session) SendFrame(frame audio.Frame) error {
	s.mu.Lock()
	recording := s.recording
	s.mu.Unlock()
	if !recording {
		return ErrNotRecording
	}
	return s.enqueue(outbound{messageType: websocket.BinaryMessage, data: frame.Bytes()})
}

// StopRecording ends the utterance. It always leaves the session stopped and
// fires OnRecordingStop once, on the caller's goroutine, even when nothing
// was recorded. The final transcript, if any, arrives later through
// OnFinalTranscript.
func (s *Session) StopRecording() error {
	s.mu.Lock()
	wasRecording := s.recording
	s.recording = false
	notify := !s.stopNotified
	s.stopNotified = true
	closing := s.closing
	s.mu.Unlock()

	// notify before queueing stop so the final transcript cannot overtake it
	if notify && s.cb.OnRecordingStop != nil {
		s.cb.OnRecordingStop()
	}
	if wasRecording && !closing {
		return s.sendJSON(wire.StopControl())
	}
	return nil
}

// ControlBargeIn asks the server to pause or resume text-to-speech playback.
func (s *Session) ControlBargeIn(action wire.BargeInAction, sessionID string) error {
	return s.sendJSON(wire.BargeIn(action, sessionID))
}

// Recording reports whether a recording is in progress.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Close flushes queued messages, sends a close frame and releases the
// socket. Safe to call more than once and from callbacks.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.recording = false
		s.mu.Unlock()

		close(s.done)
		<-s.writerEnd
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
		s.logger.Debug("voice channel closed", "url", s.url)
	})
	return nil
}

// Done is closed when the read loop exits.
func (s *Session) Done() <-chan struct{} {
	return s.readerEnd
}

// Err returns the first transport error seen by the session, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal control message: %w", err)
	}
	return s.enqueue(outbound{messageType: websocket.TextMessage, data: data})
}

func (s *Session) enqueue(msg outbound) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.outbox <- msg:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) writeLoop() {
	defer close(s.writerEnd)

	write := func(msg outbound) bool {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(msg.messageType, msg.data); err != nil {
			s.setErr(&TransportError{Op: "write", URL: s.url, Err: err})
			// the read loop observes the closed socket and reports it
			_ = s.conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case msg := <-s.outbox:
			if !write(msg) {
				return
			}
		case <-s.done:
			for {
				select {
				case msg := <-s.outbox:
					if !write(msg) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) readLoop() {
	defer close(s.readerEnd)

	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if s.isClosing() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			s.fail(err)
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if s.cb.OnPlaybackAudio != nil {
				s.cb.OnPlaybackAudio(payload)
			}
		case websocket.TextMessage:
			ev, err := wire.DecodeVoiceEvent(payload)
			if err != nil {
				s.logger.Warn("malformed voice event", "error", err)
				s.report(err)
				continue
			}
			s.dispatch(ev)
		}
	}
}

func (s *Session) dispatch(ev wire.VoiceEvent) {
	switch ev.Type {
	case wire.VoiceRecordingStarted:
		if s.cb.OnRecordingStart != nil {
			s.cb.OnRecordingStart()
		}
	case wire.VoiceRecordingStopped:
		s.mu.Lock()
		s.recording = false
		notify := !s.stopNotified
		s.stopNotified = true
		s.mu.Unlock()
		if notify && s.cb.OnRecordingStop != nil {
			s.cb.OnRecordingStop()
		}
	case wire.VoicePartial:
		if s.cb.OnPartialTranscript != nil {
			s.cb.OnPartialTranscript(ev.Text)
		}
	case wire.VoiceFinal:
		if s.cb.OnFinalTranscript != nil {
			s.cb.OnFinalTranscript(ev.Text)
		}
	case wire.VoiceLevel:
		if s.cb.OnAudioLevel != nil {
			s.cb.OnAudioLevel(int(ev.Level))
		}
	case wire.VoiceError:
		s.report(&STTError{Message: ev.Message})
	case wire.VoiceTTSStart, wire.VoiceTTSEnd:
		if s.cb.OnPlayback != nil {
			s.cb.OnPlayback(ev.SessionID, ev.Type == wire.VoiceTTSStart)
		}
	}
}

// fail records the closure of the channel and reports it once.
func (s *Session) fail(cause error) {
	err := &TransportError{Op: "read", URL: s.url, Err: ErrTransportClosed}
	if cause != nil {
		err.Err = fmt.Errorf("%w: %w", ErrTransportClosed, cause)
	}
	s.setErr(err)

	s.errMu.Lock()
	first := !s.reported
	s.reported = true
	s.errMu.Unlock()

	s.mu.Lock()
	s.recording = false
	s.mu.Unlock()

	s.logger.Warn("voice channel lost", "error", err)
	if first && s.cb.OnSTTError != nil {
		s.cb.OnSTTError(err)
	}
}

func (s *Session) report(err error) {
	if s.cb.OnSTTError != nil {
		s.cb.OnSTTError(err)
	}
}

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}
