package audio

import (
	"time"

	"github.com/asticode/go-astiav"
)

const (
	// DefaultFrameSize is used when the output codec accepts variable frame
	// sizes and therefore reports none of its own.
	DefaultFrameSize = 1024

	// DefaultFadeMS is the crossfade duration when the configuration does
	// not override it.
	DefaultFadeMS = 5000

	// defaultLoopOffsetSamples shortens the per-frame sleep so the loop runs
	// slightly ahead of real time; a stream that runs slightly fast is
	// absorbed by the sink buffer, one that runs slow causes dropouts.
	defaultLoopOffsetSamples = 20
)

// SampleSpec describes the shape of a run of PCM samples.
type SampleSpec struct {
	SampleRate    int
	ChannelLayout astiav.ChannelLayout
	SampleFormat  astiav.SampleFormat
}

// OutputProfile is the fixed output configuration every source is normalized
// to. It is derived from the opened encoder and never changes at runtime.
type OutputProfile struct {
	SampleRate    int
	ChannelLayout astiav.ChannelLayout
	SampleFormat  astiav.SampleFormat
	FrameSamples  int
}

func (p OutputProfile) Spec() SampleSpec {
	return SampleSpec{
		SampleRate:    p.SampleRate,
		ChannelLayout: p.ChannelLayout,
		SampleFormat:  p.SampleFormat,
	}
}

func (p OutputProfile) Channels() int { return p.ChannelLayout.Channels() }

// LoopDuration is the nominal wall-clock interval per output frame, minus
// the pacing lead.
func (p OutputProfile) LoopDuration() time.Duration {
	samples := p.FrameSamples - defaultLoopOffsetSamples
	if samples < 0 {
		samples = 0
	}
	return time.Duration(samples) * time.Second / time.Duration(p.SampleRate)
}

// xfadeSpec is the crossfade mixing domain: packed float stereo at the
// output rate.
func (p OutputProfile) xfadeSpec() SampleSpec {
	return SampleSpec{
		SampleRate:    p.SampleRate,
		ChannelLayout: astiav.ChannelLayoutStereo,
		SampleFormat:  astiav.SampleFormatFlt,
	}
}

// stagingSpec is the shape synthetic audio is generated in before it is
// resampled to the pipeline target.
func stagingSpec(sampleRate int) SampleSpec {
	return SampleSpec{
		SampleRate:    sampleRate,
		ChannelLayout: astiav.ChannelLayoutStereo,
		SampleFormat:  astiav.SampleFormatS16,
	}
}
