package conversation

import (
	"errors"

	"github.com/elee1766/talkback/src/audio"
	"github.com/elee1766/talkback/src/audiotransport"
)

var (
	// Action rejections. They leave the machine untouched apart from the notice.
	ErrStreamActive  = errors.New("a response is still streaming")
	ErrVoiceActive   = errors.New("voice recording is in progress")
	ErrNotRecording  = errors.New("not recording")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrVoiceDisabled = errors.New("voice is not configured")

	// ErrNoFinalTranscript means recording stopped and no final transcript
	// arrived within the grace period.
	ErrNoFinalTranscript = errors.New("no final transcript received")
)

// Voice error kinds shown to the user so they can act on them.
const (
	VoiceErrPermissionDenied = "PermissionDeniedError"
	VoiceErrDeviceNotFound   = "DeviceNotFoundError"
	VoiceErrTransportConnect = "TransportConnectError"
	VoiceErrTransportClosed  = "TransportClosedError"
	VoiceErrSTT              = "STTError"
	VoiceErrCapture          = "CaptureError"
)

// voiceErrorKind classifies a voice failure.
func voiceErrorKind(err error) string {
	var stt *audiotransport.STTError
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return VoiceErrPermissionDenied
	case errors.Is(err, audio.ErrDeviceNotFound):
		return VoiceErrDeviceNotFound
	case errors.Is(err, audiotransport.ErrTransportConnect):
		return VoiceErrTransportConnect
	case errors.Is(err, audiotransport.ErrTransportClosed):
		return VoiceErrTransportClosed
	case errors.As(err, &stt):
		return VoiceErrSTT
	default:
		return VoiceErrCapture
	}
}

// voiceErrorMessage is the human readable text for a voice failure.
func voiceErrorMessage(kind string, err error) string {
	switch kind {
	case VoiceErrPermissionDenied:
		return "Microphone access was denied. Allow microphone access and try again."
	case VoiceErrDeviceNotFound:
		return "No microphone was found. Connect an input device and try again."
	case VoiceErrTransportConnect:
		return "Could not reach the speech service."
	case VoiceErrTransportClosed:
		return "The speech service connection was lost."
	default:
		return err.Error()
	}
}
