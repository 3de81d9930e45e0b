package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/rs/zerolog"
)

type captureSink struct {
	profile  OutputProfile
	mu       sync.Mutex
	frames   int
	finished bool
}

func (s *captureSink) Profile() OutputProfile { return s.profile }

func (s *captureSink) WriteFrame(f *astiav.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	return nil
}

func (s *captureSink) FinishStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *captureSink) done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func waitFrames(t *testing.T, sink *captureSink, n int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for sink.count() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d frames, have %d", n, sink.count())
		}
		time.Sleep(time.Millisecond)
	}
}

func startEngine(t *testing.T, source *InputStream, fadeMS int) (*Engine, *captureSink, *ControlFlags, chan error) {
	t.Helper()
	sink := &captureSink{profile: testProfile(256)}
	flags := NewControlFlags()
	engine := NewEngine(sink, source, flags, fadeMS, zerolog.Nop())
	errc := make(chan error, 1)
	go func() { errc <- engine.Run() }()
	return engine, sink, flags, errc
}

func stopEngine(t *testing.T, flags *ControlFlags, errc chan error) {
	t.Helper()
	flags.Stop()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("engine run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestEngineStreamsSyntheticSource(t *testing.T) {
	source, err := NewSyntheticInputStream(testProfile(256), SynthWhiteNoise, zerolog.Nop())
	if err != nil {
		t.Fatalf("new synthetic stream: %v", err)
	}
	_, sink, flags, errc := startEngine(t, source, 0)

	waitFrames(t, sink, 20)
	stopEngine(t, flags, errc)

	if !sink.done() {
		t.Fatal("sink was not finished on shutdown")
	}
}

func TestEngineRecoversFromAbsentSource(t *testing.T) {
	// a nil source is the placeholder shape: the engine must substitute a
	// synthetic stream and keep the output alive
	_, sink, flags, errc := startEngine(t, nil, 0)

	waitFrames(t, sink, 10)
	stopEngine(t, flags, errc)

	if !sink.done() {
		t.Fatal("sink was not finished on shutdown")
	}
}

func TestEngineCrossfadesToArmedSource(t *testing.T) {
	outgoing, err := NewSyntheticInputStream(testProfile(256), SynthSilence, zerolog.Nop())
	if err != nil {
		t.Fatalf("new synthetic stream: %v", err)
	}
	// 256 samples at 48 kHz are 5 ms per frame; a 50 ms fade is 10 frames
	engine, sink, flags, errc := startEngine(t, outgoing, 50)
	waitFrames(t, sink, 3)

	incoming, err := NewSyntheticInputStream(testProfile(256), SynthWhiteNoise, zerolog.Nop())
	if err != nil {
		t.Fatalf("new synthetic stream: %v", err)
	}
	engine.Arm(incoming)

	deadline := time.Now().Add(10 * time.Second)
	for !flags.NormalStreaming() {
		if time.Now().After(deadline) {
			t.Fatal("crossfade never completed")
		}
		time.Sleep(time.Millisecond)
	}
	before := sink.count()
	waitFrames(t, sink, before+5)
	stopEngine(t, flags, errc)

	if engine.CurrentSource() != incoming {
		t.Fatal("incoming source did not win the crossfade")
	}
	if !sink.done() {
		t.Fatal("sink was not finished on shutdown")
	}
}

func TestEngineArmReplacesStagedSource(t *testing.T) {
	sink := &captureSink{profile: testProfile(256)}
	flags := NewControlFlags()
	engine := NewEngine(sink, nil, flags, 0, zerolog.Nop())

	first, err := NewSyntheticInputStream(testProfile(256), SynthSilence, zerolog.Nop())
	if err != nil {
		t.Fatalf("new synthetic stream: %v", err)
	}
	second, err := NewSyntheticInputStream(testProfile(256), SynthSilence, zerolog.Nop())
	if err != nil {
		t.Fatalf("new synthetic stream: %v", err)
	}

	engine.Arm(first)
	engine.Arm(second)
	if flags.NormalStreaming() {
		t.Fatal("arming did not request a swap")
	}
	if got := engine.takeStaged(); got != second {
		t.Fatal("staged slot does not hold the latest armed source")
	}
	second.Close()
}

func TestControlFlagsDefaults(t *testing.T) {
	flags := NewControlFlags()
	if flags.Stopped() {
		t.Fatal("fresh flags report stopped")
	}
	if !flags.NormalStreaming() {
		t.Fatal("fresh flags do not report normal streaming")
	}
	flags.RequestSwap()
	if flags.NormalStreaming() {
		t.Fatal("swap request not observed")
	}
	flags.Stop()
	if !flags.Stopped() {
		t.Fatal("stop not observed")
	}
}
