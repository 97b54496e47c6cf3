package audio

import "time"

// Resampler converts a continuous PCM16 stream between sample rates by
// linear interpolation. State carries across Process calls so chunk
// boundaries don't introduce discontinuities.
type Resampler struct {
	step     float64
	pos      float64
	last     int16
	hasLast  bool
	identity bool
}

// NewResampler returns a resampler from inRate to outRate.
func NewResampler(inRate, outRate int) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	return &Resampler{
		step:     float64(inRate) / float64(outRate),
		identity: inRate == outRate,
	}, nil
}

// Process resamples the next chunk of input.
func (r *Resampler) Process(in []int16) []int16 {
	if r.identity {
		return append([]int16(nil), in...)
	}

	buf := in
	if r.hasLast {
		buf = make([]int16, 0, len(in)+1)
		buf = append(buf, r.last)
		buf = append(buf, in...)
	}
	if len(buf) == 0 {
		return nil
	}

	out := make([]int16, 0, int(float64(len(buf))/r.step)+1)
	for r.pos+1 < float64(len(buf)) {
		i := int(r.pos)
		frac := r.pos - float64(i)
		v := float64(buf[i])*(1-frac) + float64(buf[i+1])*frac
		out = append(out, int16(v))
		r.pos += r.step
	}

	r.pos -= float64(len(buf) - 1)
	r.last = buf[len(buf)-1]
	r.hasLast = true
	return out
}

// Framer resamples captured PCM and cuts it into fixed-size frames.
type Framer struct {
	outRate      int
	frameSamples int
	resampler    *Resampler
	carry        []byte
	pending      []int16
	seq          int
}

// NewFramer builds a framer producing frames of frameDuration at outRate.
func NewFramer(inRate, outRate int, frameDuration time.Duration) (*Framer, error) {
	if frameDuration < time.Millisecond || frameDuration > MaxFrameDuration {
		return nil, ErrInvalidFrameSize
	}
	resampler, err := NewResampler(inRate, outRate)
	if err != nil {
		return nil, err
	}
	return &Framer{
		outRate:      outRate,
		frameSamples: int(int64(outRate) * int64(frameDuration) / int64(time.Second)),
		resampler:    resampler,
	}, nil
}

// Write consumes raw little-endian PCM16 bytes and returns every frame completed by them.
func (f *Framer) Write(pcm []byte) []Frame {
	if len(f.carry) > 0 {
		pcm = append(f.carry, pcm...)
		f.carry = nil
	}
	if len(pcm)%2 == 1 {
		f.carry = []byte{pcm[len(pcm)-1]}
		pcm = pcm[:len(pcm)-1]
	}

	f.pending = append(f.pending, f.resampler.Process(DecodePCM16(pcm))...)

	var frames []Frame
	for len(f.pending) >= f.frameSamples {
		frames = append(frames, f.next(f.pending[:f.frameSamples]))
		f.pending = f.pending[f.frameSamples:]
	}
	return frames
}

// Flush returns the trailing partial frame, if any.
func (f *Framer) Flush() []Frame {
	if len(f.pending) == 0 {
		return nil
	}
	frame := f.next(f.pending)
	f.pending = nil
	return []Frame{frame}
}

func (f *Framer) next(samples []int16) Frame {
	frame := Frame{
		Seq:        f.seq,
		SampleRate: f.outRate,
		Samples:    append([]int16(nil), samples...),
	}
	f.seq++
	return frame
}
