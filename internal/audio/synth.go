package audio

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/asticode/go-astiav"
)

// SynthMode selects what a synthetic source generates.
type SynthMode int

const (
	SynthSilence SynthMode = iota
	SynthWhiteNoise
)

func (m SynthMode) String() string {
	if m == SynthWhiteNoise {
		return "white_noise"
	}
	return "silence"
}

// whiteNoiseFullScale keeps generated noise deliberately quiet, about
// -57 dBFS on a 16-bit full scale.
const whiteNoiseFullScale = 100

// SynthSource fills 16-bit interleaved stereo frames with silence or quiet
// white noise. The fixed staging shape keeps synthesis decoupled from the
// output profile; a resampler handles the rest.
type SynthSource struct {
	mode    SynthMode
	rng     *rand.Rand
	scratch []byte
}

func NewSynthSource(mode SynthMode, seed int64) *SynthSource {
	return &SynthSource{mode: mode, rng: rand.New(rand.NewSource(seed))}
}

func (s *SynthSource) Mode() SynthMode { return s.mode }

// Fill writes one frame of samples into f, which must be 16-bit interleaved.
func (s *SynthSource) Fill(f *astiav.Frame) error {
	if err := f.MakeWritable(); err != nil {
		return fmt.Errorf("make frame writable: %w", err)
	}
	channels := f.ChannelLayout().Channels()
	n := f.NbSamples() * channels * 2
	if cap(s.scratch) < n {
		s.scratch = make([]byte, n)
	}
	buf := s.scratch[:n]

	for j := 0; j < f.NbSamples(); j++ {
		var v int16
		if s.mode == SynthWhiteNoise {
			v = int16((s.rng.Float32() - 0.5) * whiteNoiseFullScale)
		}
		for i := 0; i < channels; i++ {
			binary.LittleEndian.PutUint16(buf[(j*channels+i)*2:], uint16(v))
		}
	}

	if err := f.Data().SetBytes(buf, 0); err != nil {
		return fmt.Errorf("set frame bytes: %w", err)
	}
	return nil
}
