package audio

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

// allocFrame allocates a frame carrying spec with room for nbSamples.
func allocFrame(spec SampleSpec, nbSamples int) (*astiav.Frame, error) {
	f := astiav.AllocFrame()
	if f == nil {
		return nil, errors.New("alloc frame")
	}
	f.SetSampleFormat(spec.SampleFormat)
	f.SetChannelLayout(spec.ChannelLayout)
	f.SetSampleRate(spec.SampleRate)
	f.SetNbSamples(nbSamples)
	if nbSamples > 0 {
		if err := f.AllocBuffer(0); err != nil {
			f.Free()
			return nil, fmt.Errorf("alloc frame buffer: %w", err)
		}
	}
	return f, nil
}

// frameLengthMS is the audio duration of f in whole milliseconds.
func frameLengthMS(f *astiav.Frame) int {
	rate := f.SampleRate()
	if rate < 1000 {
		return 0
	}
	return f.NbSamples() / (rate / 1000)
}
