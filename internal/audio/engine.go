package audio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/rs/zerolog"
)

// ControlFlags is the control block shared between the audio and control
// threads. Both fields are independent atomics (release stores, acquire
// loads); no lock is involved.
type ControlFlags struct {
	stop            atomic.Bool
	normalStreaming atomic.Bool
}

func NewControlFlags() *ControlFlags {
	f := &ControlFlags{}
	f.normalStreaming.Store(true)
	return f
}

// Stop requests shutdown. It is the only cancellation channel; the audio
// thread observes it at iteration boundaries.
func (f *ControlFlags) Stop() { f.stop.Store(true) }

func (f *ControlFlags) Stopped() bool { return f.stop.Load() }

// RequestSwap asks the audio thread to crossfade to the staged source.
func (f *ControlFlags) RequestSwap() { f.normalStreaming.Store(false) }

func (f *ControlFlags) NormalStreaming() bool { return f.normalStreaming.Load() }

func (f *ControlFlags) resumeNormal() { f.normalStreaming.Store(true) }

// Sink is the OutputStream contract the engine depends on.
type Sink interface {
	Profile() OutputProfile
	WriteFrame(*astiav.Frame) error
	FinishStreaming() error
}

// Engine drives the audio thread: streaming from the current source,
// crossfading to an armed one and substituting synthetic audio on failure.
// The outbound stream never stops while the stop flag is clear.
type Engine struct {
	sink   Sink
	flags  *ControlFlags
	fadeMS int
	logger zerolog.Logger

	source *InputStream

	mu     sync.Mutex // guards staged only; leaf lock, nothing acquired under it
	staged *InputStream
}

func NewEngine(sink Sink, source *InputStream, flags *ControlFlags, fadeMS int, logger zerolog.Logger) *Engine {
	if fadeMS <= 0 {
		fadeMS = DefaultFadeMS
	}
	return &Engine{
		sink:   sink,
		flags:  flags,
		fadeMS: fadeMS,
		source: source,
		logger: logger.With().Str("component", "engine").Logger(),
	}
}

// Arm stages an incoming source and requests a crossfade. A previously
// staged source that was never consumed is closed and replaced.
func (e *Engine) Arm(s *InputStream) {
	e.mu.Lock()
	old := e.staged
	e.staged = s
	e.mu.Unlock()
	if old != nil {
		old.Close()
	}
	e.flags.RequestSwap()
}

func (e *Engine) takeStaged() *InputStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.staged
	e.staged = nil
	return s
}

// CurrentSource is the stream currently feeding the sink. Only meaningful
// from the audio thread or after Run has returned.
func (e *Engine) CurrentSource() *InputStream { return e.source }

// Run is the audio thread. It returns after Stop, once the sink has been
// finished.
func (e *Engine) Run() error {
	deadline := time.Now()
	for !e.flags.Stopped() {
		if e.flags.NormalStreaming() {
			e.continueStreaming(&deadline)
			continue
		}
		incoming := e.takeStaged()
		e.source = e.crossfade(e.source, incoming, &deadline)
		e.flags.resumeNormal()
	}

	e.source.Close()
	if s := e.takeStaged(); s != nil {
		s.Close()
	}
	return e.sink.FinishStreaming()
}

// continueStreaming pushes frames from the current source to the sink until
// a swap is requested or shutdown begins. Source failures are recovered
// locally by substituting a synthetic stream.
func (e *Engine) continueStreaming(deadline *time.Time) {
	for e.flags.NormalStreaming() && !e.flags.Stopped() {
		if err := e.source.GetOneOutputFrame(); err != nil {
			e.logger.Warn().Err(err).Msg("source failed, switching to default source")
			e.replaceWithSynthetic(e.source.FallbackMode())
			continue
		}
		if err := e.sink.WriteFrame(e.source.Frame()); err != nil {
			// a dropped frame is better than a stopped stream
			e.logger.Warn().Err(err).Msg("sink refused frame")
		}
		e.source.Sleep(deadline)
	}
}

func (e *Engine) replaceWithSynthetic(mode SynthMode) {
	e.source.Close()
	s, err := NewSyntheticInputStream(e.sink.Profile(), mode, e.logger)
	if err != nil {
		// out of options; stop rather than spin on a broken pipeline
		e.logger.Error().Err(err).Msg("cannot build synthetic source")
		e.flags.Stop()
		e.source = nil
		return
	}
	e.source = s
}
