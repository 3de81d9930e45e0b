package audio

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

// Resampler is a stateful converter between two sample specs. The underlying
// software resample context configures itself from the frame parameters on
// first use; changing an endpoint therefore rebuilds the context, which
// drops any tail still buffered inside it. Flush first when that matters.
type Resampler struct {
	ctx    *astiav.SoftwareResampleContext
	in     SampleSpec
	out    SampleSpec
	dst    *astiav.Frame
	primed bool
}

func NewResampler(in, out SampleSpec) (*Resampler, error) {
	ctx := astiav.AllocSoftwareResampleContext()
	if ctx == nil {
		return nil, errors.New("alloc software resample context")
	}
	dst := astiav.AllocFrame()
	if dst == nil {
		ctx.Free()
		return nil, errors.New("alloc resampler frame")
	}
	return &Resampler{ctx: ctx, in: in, out: out, dst: dst}, nil
}

func (r *Resampler) Close() {
	if r.dst != nil {
		r.dst.Free()
		r.dst = nil
	}
	if r.ctx != nil {
		r.ctx.Free()
		r.ctx = nil
	}
}

func (r *Resampler) Input() SampleSpec  { return r.in }
func (r *Resampler) Output() SampleSpec { return r.out }

// SetInput changes the input endpoint and reinitializes the context.
func (r *Resampler) SetInput(in SampleSpec) error {
	r.in = in
	return r.reinit()
}

// SetOutput changes the output endpoint and reinitializes the context.
func (r *Resampler) SetOutput(out SampleSpec) error {
	r.out = out
	return r.reinit()
}

func (r *Resampler) reinit() error {
	r.ctx.Free()
	ctx := astiav.AllocSoftwareResampleContext()
	if ctx == nil {
		return errors.New("alloc software resample context")
	}
	r.ctx = ctx
	r.primed = false
	return nil
}

// outCapacity bounds the number of samples n input samples can emit,
// including whatever delay the converter still holds.
func (r *Resampler) outCapacity(n int) int {
	if r.in.SampleRate <= 0 {
		return n + 256
	}
	return n*r.out.SampleRate/r.in.SampleRate + 256
}

func (r *Resampler) prepDst(capacity int) error {
	r.dst.Unref()
	r.dst.SetSampleFormat(r.out.SampleFormat)
	r.dst.SetChannelLayout(r.out.ChannelLayout)
	r.dst.SetSampleRate(r.out.SampleRate)
	r.dst.SetNbSamples(capacity)
	if err := r.dst.AllocBuffer(0); err != nil {
		return fmt.Errorf("alloc dst buffer: %w", err)
	}
	return nil
}

// Convert pushes src through the converter and returns the emitted samples.
// The returned frame is owned by the resampler and is only valid until the
// next call.
func (r *Resampler) Convert(src *astiav.Frame) (*astiav.Frame, error) {
	if err := r.prepDst(r.outCapacity(src.NbSamples())); err != nil {
		return nil, err
	}
	if err := r.ctx.ConvertFrame(src, r.dst); err != nil {
		return nil, fmt.Errorf("swr convert: %w", err)
	}
	r.primed = true
	return r.dst, nil
}

// ConvertInto converts src into dst. dst must already carry the output spec
// and a buffer large enough for the emitted samples.
func (r *Resampler) ConvertInto(src, dst *astiav.Frame) error {
	if err := dst.MakeWritable(); err != nil {
		return fmt.Errorf("make dst writable: %w", err)
	}
	if err := r.ctx.ConvertFrame(src, dst); err != nil {
		return fmt.Errorf("swr convert: %w", err)
	}
	r.primed = true
	return nil
}

// Flush drains the converter tail. The returned frame is owned by the
// resampler and is only valid until the next call; its sample count is zero
// when there is nothing to drain.
func (r *Resampler) Flush() (*astiav.Frame, error) {
	if err := r.prepDst(r.outCapacity(DefaultFrameSize)); err != nil {
		return nil, err
	}
	if !r.primed {
		r.dst.SetNbSamples(0)
		return r.dst, nil
	}
	if err := r.ctx.ConvertFrame(nil, r.dst); err != nil {
		return nil, fmt.Errorf("swr flush: %w", err)
	}
	return r.dst, nil
}
