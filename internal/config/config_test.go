package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadMissingFileYieldsEmptyRegistry(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if names := r.Names(); len(names) != 0 {
		t.Fatalf("unexpected sources %v", names)
	}
	if _, _, ok := r.InitialSource(); ok {
		t.Fatal("empty registry reports an initial source")
	}
}

func TestLoadRejectsCorruptJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("corrupt config loaded without error")
	}
}

func TestAddPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	r, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := SourceDescriptor{
		URL:     "http://example.com/stream.mp3",
		Format:  "mp3",
		Options: map[string]string{"rw_timeout": "5000000"},
	}
	if err := r.Add("morning-show", want); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add("evening-show", SourceDescriptor{URL: "file:///music/evening.flac"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	fresh, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok := fresh.Lookup("morning-show")
	if !ok {
		t.Fatal("persisted source missing after reload")
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("lookup = %+v, want %+v", got, want)
	}
	if names := fresh.Names(); !reflect.DeepEqual(names, []string{"evening-show", "morning-show"}) {
		t.Fatalf("names = %v, want sorted pair", names)
	}
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	r, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := r.Add("a", SourceDescriptor{URL: "http://a"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file left behind after save")
	}
}

func TestReloadReplacesInMemoryState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	r, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := r.Add("old", SourceDescriptor{URL: "http://old"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	next := []byte(`{
  "output": {"url": "icecast://host/mount", "format": "mp3", "codec": "libmp3lame",
             "bit_rate": 128000, "sample_rate": 48000, "channels": 2},
  "sources": {"new": {"url": "http://new"}},
  "initial_source": "new",
  "fade_ms": 2500
}`)
	if err := os.WriteFile(path, next, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if _, ok := r.Lookup("old"); ok {
		t.Fatal("stale source survived reload")
	}
	name, d, ok := r.InitialSource()
	if !ok || name != "new" || d.URL != "http://new" {
		t.Fatalf("initial source = %q %+v ok=%v", name, d, ok)
	}
	if r.FadeMS() != 2500 {
		t.Fatalf("fade_ms = %d, want 2500", r.FadeMS())
	}
	if r.Output().Codec != "libmp3lame" {
		t.Fatalf("output codec = %q", r.Output().Codec)
	}
}
