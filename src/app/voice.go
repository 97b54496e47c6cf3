package app

import (
	"context"

	"github.com/elee1766/talkback/src/audio"
	"github.com/elee1766/talkback/src/audiotransport"
	"github.com/elee1766/talkback/src/conversation"
	"github.com/elee1766/talkback/src/voice"
)

var _ conversation.VoiceBackend = (*VoiceBackend)(nil)

// VoiceBackend opens a speech channel and a microphone session for each
// push-to-talk gesture.
type VoiceBackend struct {
	client  *audiotransport.Client
	capture audio.Capture
	opts    voice.Options
}

func NewVoiceBackend(client *audiotransport.Client, capture audio.Capture, opts voice.Options) *VoiceBackend {
	if opts.TargetRate <= 0 {
		opts.TargetRate = audio.CaptureSampleRate
	}
	return &VoiceBackend{client: client, capture: capture, opts: opts}
}

func (b *VoiceBackend) OpenChannel(ctx context.Context, cb audiotransport.Callbacks) (conversation.VoiceChannel, error) {
	s, err := b.client.Open(ctx, cb)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *VoiceBackend) NewCapture(sink voice.FrameSink) conversation.VoiceCapture {
	return voice.NewSession(b.capture, sink, b.opts)
}

// SampleRate is the rate of the frames sent to the speech backend.
func (b *VoiceBackend) SampleRate() int {
	return b.opts.TargetRate
}
