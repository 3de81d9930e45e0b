package control

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fondueaudio/fondue/internal/audio"
	"github.com/fondueaudio/fondue/internal/config"
)

type recordingEngine struct {
	armed []*audio.InputStream
}

func (e *recordingEngine) Arm(s *audio.InputStream) { e.armed = append(e.armed, s) }

func newTestController(t *testing.T) (*Controller, *recordingEngine, *audio.ControlFlags, *config.Registry, *bytes.Buffer) {
	t.Helper()
	registry, err := config.Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	engine := &recordingEngine{}
	flags := audio.NewControlFlags()
	out := &bytes.Buffer{}
	c := New(engine, flags, registry, audio.OutputProfile{}, strings.NewReader(""), out, zerolog.Nop())
	return c, engine, flags, registry, out
}

func TestKillStopsTheDaemon(t *testing.T) {
	c, _, flags, _, _ := newTestController(t)
	if done := c.handle("kill"); !done {
		t.Fatal("kill did not end the command loop")
	}
	if !flags.Stopped() {
		t.Fatal("kill did not set the stop flag")
	}
}

func TestListSourcesPrintsNameAndURL(t *testing.T) {
	c, _, _, registry, out := newTestController(t)
	if err := registry.Add("beta", config.SourceDescriptor{URL: "http://b"}); err != nil {
		t.Fatal(err)
	}
	if err := registry.Add("alpha", config.SourceDescriptor{URL: "http://a"}); err != nil {
		t.Fatal(err)
	}

	c.handle("list-sources")
	want := "alpha : http://a\nbeta : http://b\n"
	if out.String() != want {
		t.Fatalf("output %q, want %q", out.String(), want)
	}
}

func TestAddSourcePersists(t *testing.T) {
	c, _, _, registry, out := newTestController(t)
	c.handle("add-source jazz http://jazz.example/stream")

	d, ok := registry.Lookup("jazz")
	if !ok || d.URL != "http://jazz.example/stream" {
		t.Fatalf("lookup = %+v ok=%v", d, ok)
	}
	if !strings.Contains(out.String(), "added jazz") {
		t.Fatalf("no confirmation printed: %q", out.String())
	}
}

func TestAddSourceUsage(t *testing.T) {
	c, _, _, registry, out := newTestController(t)
	c.handle("add-source missing-url")
	if !strings.Contains(out.String(), "usage:") {
		t.Fatalf("no usage printed: %q", out.String())
	}
	if names := registry.Names(); len(names) != 0 {
		t.Fatalf("malformed command mutated registry: %v", names)
	}
}

func TestPlayUnknownSource(t *testing.T) {
	c, engine, _, _, out := newTestController(t)
	c.handle("play nope")
	if len(engine.armed) != 0 {
		t.Fatal("unknown source was armed")
	}
	if !strings.Contains(out.String(), "unknown source") {
		t.Fatalf("no diagnostic printed: %q", out.String())
	}
}

func TestUnknownAndEmptyCommandsAreIgnored(t *testing.T) {
	c, engine, flags, _, _ := newTestController(t)
	if done := c.handle(""); done {
		t.Fatal("empty line stopped the loop")
	}
	if done := c.handle("frobnicate"); done {
		t.Fatal("unknown command stopped the loop")
	}
	if flags.Stopped() || len(engine.armed) != 0 {
		t.Fatal("unexpected side effects")
	}
}
