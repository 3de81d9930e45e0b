package audio

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

// FrameBuffer is a FIFO of PCM samples tagged with a sample spec. All
// buffered samples share the tag, reads never return partial counts and
// Size is exact. It is not thread-safe: it lives inside one InputStream and
// is only touched from the audio thread.
type FrameBuffer struct {
	fifo *astiav.AudioFifo
	spec SampleSpec
}

func NewFrameBuffer(spec SampleSpec) (*FrameBuffer, error) {
	fifo := astiav.AllocAudioFifo(spec.SampleFormat, spec.ChannelLayout.Channels(), 1)
	if fifo == nil {
		return nil, errors.New("alloc audio fifo")
	}
	return &FrameBuffer{fifo: fifo, spec: spec}, nil
}

func (b *FrameBuffer) Close() {
	if b.fifo != nil {
		b.fifo.Free()
		b.fifo = nil
	}
}

func (b *FrameBuffer) Spec() SampleSpec { return b.spec }

func (b *FrameBuffer) Size() int {
	if b.fifo == nil {
		return 0
	}
	return b.fifo.Size()
}

// Write appends all samples of f to the buffer. f must match the tag.
func (b *FrameBuffer) Write(f *astiav.Frame) error {
	n, err := b.fifo.Write(f)
	if err != nil {
		return fmt.Errorf("fifo write: %w", err)
	}
	if n < f.NbSamples() {
		return fmt.Errorf("fifo write: wrote %d of %d samples", n, f.NbSamples())
	}
	return nil
}

// Read fills f with exactly f.NbSamples() samples, or fails without
// consuming anything.
func (b *FrameBuffer) Read(f *astiav.Frame) error {
	if b.fifo.Size() < f.NbSamples() {
		return fmt.Errorf("fifo read: need %d samples, have %d", f.NbSamples(), b.fifo.Size())
	}
	n, err := b.fifo.Read(f)
	if err != nil {
		return fmt.Errorf("fifo read: %w", err)
	}
	if n < f.NbSamples() {
		return fmt.Errorf("fifo read: got %d of %d samples", n, f.NbSamples())
	}
	return nil
}

// Reset drops all buffered samples, keeping the tag.
func (b *FrameBuffer) Reset() error {
	spec := b.spec
	b.Close()
	fifo := astiav.AllocAudioFifo(spec.SampleFormat, spec.ChannelLayout.Channels(), 1)
	if fifo == nil {
		return errors.New("alloc audio fifo")
	}
	b.fifo = fifo
	return nil
}

// Realloc retags the buffer to spec. An empty buffer is simply reallocated;
// buffered samples are drained through a one-shot same-rate resampler into
// the new tag so nothing audible is lost when a crossfade begins or ends.
func (b *FrameBuffer) Realloc(spec SampleSpec) error {
	size := b.Size()
	if size == 0 {
		b.spec = spec
		return b.Reset()
	}

	held, err := allocFrame(b.spec, size)
	if err != nil {
		return fmt.Errorf("retag buffer: %w", err)
	}
	defer held.Free()
	if err := b.Read(held); err != nil {
		return fmt.Errorf("retag buffer: %w", err)
	}

	res, err := NewResampler(b.spec, spec)
	if err != nil {
		return fmt.Errorf("retag buffer: %w", err)
	}
	defer res.Close()
	converted, err := res.Convert(held)
	if err != nil {
		return fmt.Errorf("retag buffer: %w", err)
	}

	b.spec = spec
	if err := b.Reset(); err != nil {
		return err
	}
	if converted.NbSamples() > 0 {
		return b.Write(converted)
	}
	return nil
}
