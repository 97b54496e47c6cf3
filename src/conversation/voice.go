package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/elee1766/talkback/src/audiotransport"
	"github.com/elee1766/talkback/src/voice"
	"github.com/elee1766/talkback/src/wire"
)

// StartRecording begins a push-to-talk gesture. The phase is
// voice_connecting until the speech backend acknowledges the recording.
// Device and connection failures are returned and also surfaced on the
// voice session; the gesture is then torn down and the phase is idle again.
func (m *Machine) StartRecording(ctx context.Context) error {
	m.mu.Lock()
	if m.voice == nil {
		m.rejectLocked(ErrVoiceDisabled)
		return ErrVoiceDisabled
	}
	if err := m.admitLocked(); err != nil {
		m.rejectLocked(err)
		return err
	}

	m.voiceGen++
	gen := m.voiceGen
	prev := m.released
	rate := m.voice.SampleRate()
	playback := m.playback
	m.acked = false
	m.finals = nil
	m.pendingSubmit = false
	m.notice = ""
	m.voiceState = VoiceSession{State: VoiceConnecting, SampleRate: rate}
	evs := m.setPhaseLocked(PhaseVoiceConnecting)
	evs = append(evs, m.voiceEventLocked())
	m.unlockAndEmit(evs...)

	// the previous gesture must have let go of the microphone
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			m.failVoice(gen, ctx.Err())()
			return ctx.Err()
		}
	}

	ch, err := m.voice.OpenChannel(ctx, m.voiceCallbacks(gen))
	if err != nil {
		m.failVoice(gen, err)()
		return err
	}

	if playback.Playing && playback.SessionID != "" {
		if err := ch.ControlBargeIn(wire.BargeInPause, playback.SessionID); err != nil {
			m.logger.Warn("barge-in failed", "tts_session_id", playback.SessionID, "error", err)
		}
	}

	capture := m.voice.NewCapture(ch)
	if err := ch.StartRecording(rate); err != nil {
		m.failVoice(gen, err)()
		capture.Dispose()
		_ = ch.Close()
		return err
	}
	err = capture.Start(ctx, voice.Callbacks{
		OnAudioLevel: func(level int) { m.onAudioLevel(gen, level) },
		OnError: func(err error) {
			go m.failVoice(gen, err)()
		},
	})
	if err != nil {
		m.failVoice(gen, err)()
		capture.Dispose()
		_ = ch.Close()
		return err
	}

	m.mu.Lock()
	if gen != m.voiceGen {
		// cancelled while connecting
		m.mu.Unlock()
		capture.Dispose()
		_ = ch.Close()
		return nil
	}
	m.channel = ch
	m.capture = capture
	m.released = make(chan struct{})
	var attached []ViewEvent
	if m.acked {
		attached = m.enterRecordingLocked()
	}
	m.unlockAndEmit(attached...)

	m.logger.Debug("recording started", "mode", capture.Mode(), "sample_rate", rate)
	return nil
}

// StopRecording ends the gesture. A final transcript already received is
// submitted at once; otherwise the next final transcript is submitted when
// it arrives, exactly once. Without one before the grace period ends,
// nothing is submitted.
func (m *Machine) StopRecording() error {
	m.mu.Lock()
	if m.phase != PhaseVoiceConnecting && m.phase != PhaseVoiceRecording {
		m.rejectLocked(ErrNotRecording)
		return ErrNotRecording
	}
	if m.capture == nil {
		// still connecting: nothing was captured yet
		m.mu.Unlock()
		m.Cancel()
		return nil
	}

	gen := m.voiceGen
	ch, capture := m.channel, m.capture
	m.voiceState.State = VoiceProcessing
	evs := m.setPhaseLocked(PhaseVoiceProcessing)
	evs = append(evs, m.voiceEventLocked())
	m.unlockAndEmit(evs...)

	frames, err := capture.Stop()
	if err != nil {
		m.logger.Debug("recorder stopped with error", "error", err)
	}
	if capture.Mode() == voice.ModeBuffered {
		for _, frame := range frames {
			if err := ch.SendFrame(frame); err != nil {
				m.failVoice(gen, err)()
				return err
			}
		}
	}
	if err := ch.StopRecording(); err != nil {
		m.failVoice(gen, err)()
		return err
	}

	m.mu.Lock()
	if gen != m.voiceGen {
		m.mu.Unlock()
		return nil
	}
	if len(m.finals) > 0 {
		return m.submitVoiceLocked(gen, nil)
	}
	m.pendingSubmit = true
	grace := m.opts.FinalTranscriptGrace
	m.graceTimer = time.AfterFunc(grace, func() { m.graceExpired(gen) })
	m.mu.Unlock()
	return nil
}

func (m *Machine) voiceCallbacks(gen uint64) audiotransport.Callbacks {
	return audiotransport.Callbacks{
		OnRecordingStart: func() {
			m.mu.Lock()
			if gen != m.voiceGen || m.phase != PhaseVoiceConnecting {
				m.mu.Unlock()
				return
			}
			m.acked = true
			if m.capture == nil {
				m.mu.Unlock()
				return
			}
			m.unlockAndEmit(m.enterRecordingLocked()...)
		},
		OnRecordingStop: func() {
			m.mu.Lock()
			serverStop := gen == m.voiceGen && m.phase == PhaseVoiceRecording
			m.mu.Unlock()
			if serverStop {
				// the backend ended the utterance on its own
				go m.StopRecording()
			}
		},
		OnPartialTranscript: func(text string) {
			m.mu.Lock()
			if gen != m.voiceGen {
				m.mu.Unlock()
				return
			}
			m.voiceState.TranscriptPartial = text
			m.unlockAndEmit(&TranscriptEvent{BaseEvent: m.base(EventTranscript), Text: text})
		},
		OnFinalTranscript: func(text string) {
			m.onFinalTranscript(gen, text)
		},
		OnAudioLevel: func(level int) {
			m.onAudioLevel(gen, level)
		},
		OnSTTError: func(err error) {
			go m.failVoice(gen, err)()
		},
		OnPlayback: m.SetPlayback,
		OnPlaybackAudio: func(pcm []byte) {
			if m.opts.OnPlaybackAudio != nil {
				m.opts.OnPlaybackAudio(pcm)
			}
		},
	}
}

func (m *Machine) enterRecordingLocked() []ViewEvent {
	m.voiceState.State = VoiceRecording
	evs := m.setPhaseLocked(PhaseVoiceRecording)
	return append(evs, m.voiceEventLocked())
}

func (m *Machine) onFinalTranscript(gen uint64, text string) {
	text = strings.TrimSpace(text)
	m.mu.Lock()
	if gen != m.voiceGen || text == "" {
		m.mu.Unlock()
		return
	}
	m.finals = append(m.finals, text)
	m.voiceState.TranscriptFinal = strings.Join(m.finals, " ")
	evs := []ViewEvent{&TranscriptEvent{BaseEvent: m.base(EventTranscript), Text: text, Final: true}}
	if !m.pendingSubmit {
		m.unlockAndEmit(evs...)
		return
	}
	if err := m.submitVoiceLocked(gen, evs); err != nil {
		m.logger.Warn("failed to submit transcript", "voice_generation", gen, "error", err)
	}
}

func (m *Machine) onAudioLevel(gen uint64, level int) {
	m.mu.Lock()
	if gen != m.voiceGen || m.voiceState.AudioLevel == level {
		m.mu.Unlock()
		return
	}
	m.voiceState.AudioLevel = level
	m.unlockAndEmit(m.voiceEventLocked())
}

// submitVoiceLocked ends the gesture and sends the held final transcript as
// the user turn. It unlocks.
func (m *Machine) submitVoiceLocked(gen uint64, pre []ViewEvent) error {
	text := strings.Join(m.finals, " ")
	release := m.detachVoiceLocked()
	go release()

	m.voiceState.State = VoiceIdle
	evs := append(pre, m.setPhaseLocked(PhaseIdle)...)
	evs = append(evs, m.voiceEventLocked())

	m.logger.Debug("submitting transcript", "voice_generation", gen, "length", len(text))
	return m.sendLocked(context.Background(), text, evs)
}

func (m *Machine) graceExpired(gen uint64) {
	m.mu.Lock()
	if gen != m.voiceGen || !m.pendingSubmit {
		m.mu.Unlock()
		return
	}
	release := m.detachVoiceLocked()
	m.voiceState.State = VoiceIdle
	m.notice = ErrNoFinalTranscript.Error()
	evs := m.setPhaseLocked(PhaseIdle)
	evs = append(evs, m.voiceEventLocked(), &NoticeEvent{BaseEvent: m.base(EventNotice), Message: m.notice})
	m.unlockAndEmit(evs...)
	go release()

	m.logger.Info("recording ended without a final transcript")
}

// failVoice surfaces err on the voice session and returns to idle. The
// returned func releases the gesture's resources; callers on a capture or
// transport goroutine run it on a new goroutine.
func (m *Machine) failVoice(gen uint64, err error) func() {
	m.mu.Lock()
	if gen != m.voiceGen || !m.phase.Voice() {
		m.mu.Unlock()
		return func() {}
	}
	release := m.detachVoiceLocked()

	kind := voiceErrorKind(err)
	m.voiceState.State = VoiceIdle
	m.voiceState.Error = kind
	m.voiceState.ErrorMessage = voiceErrorMessage(kind, err)
	m.lastError = m.voiceState.ErrorMessage

	evs := m.setPhaseLocked(PhaseError)
	evs = append(evs, m.voiceEventLocked(), &ErrorEvent{BaseEvent: m.base(EventError), Error: err, Context: "voice"})
	evs = append(evs, m.setPhaseLocked(PhaseIdle)...)
	m.unlockAndEmit(evs...)

	m.logger.Warn("voice session failed", "kind", kind, "error", err)
	return release
}

// detachVoiceLocked invalidates the current gesture and hands back a func
// that releases its microphone and channel.
func (m *Machine) detachVoiceLocked() func() {
	m.voiceGen++
	m.pendingSubmit = false
	m.acked = false
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}

	ch, capture, released := m.channel, m.capture, m.released
	m.channel, m.capture = nil, nil
	if ch == nil && capture == nil {
		return func() {}
	}
	return func() {
		if capture != nil {
			capture.Dispose()
		}
		if ch != nil {
			if err := ch.Close(); err != nil {
				m.logger.Debug("voice channel close failed", "error", err)
			}
		}
		close(released)
	}
}

func (m *Machine) voiceEventLocked() ViewEvent {
	return &VoiceEvent{BaseEvent: m.base(EventVoice), Voice: m.voiceState}
}
