package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// InputStream turns one logical source - a decoded URL or a synthetic
// generator - into a producer of output-profile frames. It owns its decoder,
// resampler pair, FIFO and working frames exclusively; once installed as the
// engine's current source it is only touched from the audio thread.
//
// Streams are not copyable. Ownership moves by pointer handoff; CloneForTest
// rebuilds an equivalent stream from construction parameters instead of
// cloning media-library state.
type InputStream struct {
	id       string
	url      string
	format   string
	options  map[string]string
	profile  OutputProfile
	timing   SourceTimingMode
	fallback SynthMode
	logger   zerolog.Logger

	dec       *SourceDecoder
	res       *Resampler // source (or staging) shape -> pipeline target
	xfadeRes  *Resampler // crossfade domain -> output profile
	buf       *FrameBuffer
	frame     *astiav.Frame // working frame; retagged around a crossfade
	sinkFrame *astiav.Frame // profile-shaped frame the sink reads mid-fade
	staging   *astiav.Frame // 16-bit stereo staging for the synthetic path
	synth     *SynthSource
	clock     PacingClock

	valid   bool // false selects the synthetic path
	xfading bool

	mixOut []float32
	mixIn  []float32
	mixBuf []byte
}

func newInputStream(profile OutputProfile, timing SourceTimingMode, fallback SynthMode, logger zerolog.Logger) (*InputStream, error) {
	s := &InputStream{
		id:       uuid.NewString()[:8],
		profile:  profile,
		timing:   timing,
		fallback: fallback,
		clock:    NewPacingClock(profile, timing),
	}
	s.logger = logger.With().Str("stream", s.id).Logger()

	frame, err := allocFrame(profile.Spec(), profile.FrameSamples)
	if err != nil {
		return nil, err
	}
	s.frame = frame

	xfadeRes, err := NewResampler(profile.xfadeSpec(), profile.Spec())
	if err != nil {
		s.Close()
		return nil, err
	}
	s.xfadeRes = xfadeRes

	buf, err := NewFrameBuffer(profile.Spec())
	if err != nil {
		s.Close()
		return nil, err
	}
	s.buf = buf
	return s, nil
}

// OpenInputStream binds a stream to a real source URL. fallback names the
// synthetic mode the engine should substitute if this source dies.
func OpenInputStream(url, format string, options map[string]string, profile OutputProfile,
	timing SourceTimingMode, fallback SynthMode, logger zerolog.Logger) (*InputStream, error) {

	s, err := newInputStream(profile, timing, fallback, logger)
	if err != nil {
		return nil, err
	}
	s.url = url
	s.format = format
	s.options = options
	s.logger = s.logger.With().Str("url", url).Logger()

	dec, err := OpenSourceDecoder(url, format, options)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.dec = dec

	res, err := NewResampler(dec.Spec(), profile.Spec())
	if err != nil {
		s.Close()
		return nil, err
	}
	s.res = res
	s.valid = true
	return s, nil
}

// NewSyntheticInputStream builds a stream with no decoder. It synthesizes
// silence or quiet white noise in the output shape; once built, producing a
// frame fails only if resampling does, which makes it the engine's fallback
// of last resort.
func NewSyntheticInputStream(profile OutputProfile, mode SynthMode, logger zerolog.Logger) (*InputStream, error) {
	s, err := newInputStream(profile, TimingRealtime, mode, logger)
	if err != nil {
		return nil, err
	}
	s.synth = NewSynthSource(mode, time.Now().UnixNano())

	staging, err := allocFrame(stagingSpec(profile.SampleRate), profile.FrameSamples)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.staging = staging

	res, err := NewResampler(stagingSpec(profile.SampleRate), profile.Spec())
	if err != nil {
		s.Close()
		return nil, err
	}
	s.res = res
	s.valid = false
	return s, nil
}

// Close releases everything the stream owns. Safe on nil and on partially
// constructed streams.
func (s *InputStream) Close() {
	if s == nil {
		return
	}
	if s.dec != nil {
		s.dec.Close()
		s.dec = nil
	}
	if s.res != nil {
		s.res.Close()
		s.res = nil
	}
	if s.xfadeRes != nil {
		s.xfadeRes.Close()
		s.xfadeRes = nil
	}
	if s.buf != nil {
		s.buf.Close()
		s.buf = nil
	}
	if s.frame != nil {
		s.frame.Free()
		s.frame = nil
	}
	if s.sinkFrame != nil {
		s.sinkFrame.Free()
		s.sinkFrame = nil
	}
	if s.staging != nil {
		s.staging.Free()
		s.staging = nil
	}
}

func (s *InputStream) ID() string { return s.id }

func (s *InputStream) URL() string { return s.url }

// Valid reports whether the stream is bound to a real source.
func (s *InputStream) Valid() bool { return s != nil && s.valid }

// FallbackMode is the synthetic mode to substitute when this stream dies.
func (s *InputStream) FallbackMode() SynthMode {
	if s == nil {
		return SynthWhiteNoise
	}
	return s.fallback
}

func (s *InputStream) LoopDuration() time.Duration { return s.clock.LoopDuration() }

// Frame returns the frame most recently prepared for the sink.
func (s *InputStream) Frame() *astiav.Frame {
	if s == nil {
		return nil
	}
	if s.xfading && s.sinkFrame != nil {
		return s.sinkFrame
	}
	return s.frame
}

// GetOneOutputFrame fills the working frame with exactly FrameSamples
// samples in the pipeline's current shape. ErrEndOfSource and fatal decoder
// or resampler errors surface to the engine, which substitutes a synthetic
// stream; the synthetic path itself only fails if resampling does.
func (s *InputStream) GetOneOutputFrame() error {
	if s == nil || s.frame == nil || s.res == nil {
		return ErrNotReady
	}

	if !s.valid {
		if err := s.synth.Fill(s.staging); err != nil {
			return err
		}
		// same rate in and out, so the sample count is preserved
		if err := s.res.ConvertInto(s.staging, s.frame); err != nil {
			return fmt.Errorf("resample synthetic frame: %w", err)
		}
		return nil
	}

	for s.buf.Size() < s.profile.FrameSamples {
		f, err := s.dec.Pull()
		if err != nil {
			if errors.Is(err, ErrEndOfSource) {
				if ferr := s.FlushResampler(); ferr != nil {
					return ferr
				}
				if s.buf.Size() >= s.profile.FrameSamples {
					break
				}
			}
			return err
		}
		emitted, err := s.res.Convert(f)
		if err != nil {
			return err
		}
		if emitted.NbSamples() > 0 {
			if err := s.buf.Write(emitted); err != nil {
				return err
			}
		}
	}
	return s.popFrame()
}

func (s *InputStream) popFrame() error {
	if err := s.frame.MakeWritable(); err != nil {
		return fmt.Errorf("make frame writable: %w", err)
	}
	s.frame.SetNbSamples(s.profile.FrameSamples)
	return s.buf.Read(s.frame)
}

// FlushResampler drains the converter tail into the buffer; used at decoder
// EOF so the last few milliseconds of a source are not dropped.
func (s *InputStream) FlushResampler() error {
	if s == nil || s.res == nil || s.buf == nil {
		return ErrNotReady
	}
	tail, err := s.res.Flush()
	if err != nil {
		return fmt.Errorf("flush resampler: %w", err)
	}
	if tail.NbSamples() > 0 {
		if err := s.buf.Write(tail); err != nil {
			return err
		}
	}
	return nil
}

// InitCrossfade moves the stream into the crossfade domain: the pipeline
// resampler retargets packed-float stereo at the output rate and the
// working frame and buffer are retagged to match. Must be called on both
// endpoints before any CrossfadeFrame.
func (s *InputStream) InitCrossfade() error {
	if s == nil || s.res == nil || s.buf == nil {
		return ErrNotReady
	}
	if s.xfading {
		return nil
	}
	xspec := s.profile.xfadeSpec()
	if err := s.res.SetOutput(xspec); err != nil {
		return fmt.Errorf("init crossfade: %w", err)
	}
	if err := s.buf.Realloc(xspec); err != nil {
		return fmt.Errorf("init crossfade: %w", err)
	}
	frame, err := allocFrame(xspec, s.profile.FrameSamples)
	if err != nil {
		return fmt.Errorf("init crossfade: %w", err)
	}
	s.frame.Free()
	s.frame = frame
	s.xfading = true
	return nil
}

// EndCrossfade restores the output-profile shape on the resampler, buffer
// and working frame.
func (s *InputStream) EndCrossfade() error {
	if s == nil || s.res == nil || s.buf == nil {
		return ErrNotReady
	}
	if !s.xfading {
		return nil
	}
	if err := s.res.SetOutput(s.profile.Spec()); err != nil {
		return fmt.Errorf("end crossfade: %w", err)
	}
	if err := s.buf.Realloc(s.profile.Spec()); err != nil {
		return fmt.Errorf("end crossfade: %w", err)
	}
	frame, err := allocFrame(s.profile.Spec(), s.profile.FrameSamples)
	if err != nil {
		return fmt.Errorf("end crossfade: %w", err)
	}
	s.frame.Free()
	s.frame = frame
	if s.sinkFrame != nil {
		s.sinkFrame.Free()
		s.sinkFrame = nil
	}
	s.xfading = false
	return nil
}

// CrossfadeFrame fills the working frame from this stream, mixes the
// incoming frame into it with a linear gain ramp, reshapes the result into
// the output profile for the sink and advances the fade clock. Both streams
// must be in the crossfade domain.
func (s *InputStream) CrossfadeFrame(incoming *astiav.Frame, remaining *int, total int) error {
	if s == nil || !s.xfading {
		return ErrNotReady
	}
	if err := s.GetOneOutputFrame(); err != nil {
		return err
	}

	// fade progress at the start of this frame
	t := 1 - float32(*remaining)/float32(total)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	own, err := s.frame.Data().Bytes(0)
	if err != nil {
		return fmt.Errorf("own frame bytes: %w", err)
	}
	in, err := incoming.Data().Bytes(0)
	if err != nil {
		return fmt.Errorf("incoming frame bytes: %w", err)
	}

	s.mixOut = bytesToFloat32(own, s.mixOut)
	s.mixIn = bytesToFloat32(in, s.mixIn)
	mixLinear(s.mixOut, s.mixIn, t)
	s.mixBuf = float32ToBytes(s.mixOut, s.mixBuf)

	if err := s.frame.MakeWritable(); err != nil {
		return fmt.Errorf("make frame writable: %w", err)
	}
	if err := s.frame.Data().SetBytes(s.mixBuf, 0); err != nil {
		return fmt.Errorf("set mixed bytes: %w", err)
	}

	// reshape into the profile for the sink; identity whenever the profile
	// is already packed-float stereo, and the hook to retarget the fade
	// domain later without restructuring. Only the outgoing endpoint mixes,
	// so the sink frame is allocated here rather than in InitCrossfade.
	if s.sinkFrame == nil {
		sf, err := allocFrame(s.profile.Spec(), s.profile.FrameSamples)
		if err != nil {
			return fmt.Errorf("alloc sink frame: %w", err)
		}
		s.sinkFrame = sf
	}
	s.sinkFrame.SetNbSamples(s.profile.FrameSamples)
	if err := s.xfadeRes.ConvertInto(s.frame, s.sinkFrame); err != nil {
		return fmt.Errorf("reshape crossfade frame: %w", err)
	}

	*remaining -= frameLengthMS(s.frame)
	return nil
}

// Sleep paces the caller against deadline using this stream's clock.
func (s *InputStream) Sleep(deadline *time.Time) {
	if s == nil {
		return
	}
	s.clock.SleepTo(deadline)
}

// CloneForTest rebuilds an equivalent stream from construction parameters.
// Decoder position, resampler tails and buffered samples are not cloned.
func (s *InputStream) CloneForTest() (*InputStream, error) {
	if s.valid {
		return OpenInputStream(s.url, s.format, s.options, s.profile, s.timing, s.fallback, s.logger)
	}
	return NewSyntheticInputStream(s.profile, s.fallback, s.logger)
}
