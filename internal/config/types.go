package config

// SourceDescriptor is a URL plus an optional container format hint and an
// option dictionary passed through opaquely to the decoder.
type SourceDescriptor struct {
	URL     string            `json:"url"`
	Format  string            `json:"format,omitempty"`
	Options map[string]string `json:"options,omitempty"`
}

// OutputDescriptor describes the sink.
type OutputDescriptor struct {
	URL          string `json:"url"`
	Format       string `json:"format"`
	Codec        string `json:"codec"`
	BitRate      int64  `json:"bit_rate"`
	SampleRate   int    `json:"sample_rate"`
	Channels     int    `json:"channels"`
	SampleFormat string `json:"sample_format,omitempty"`
}

// File is the on-disk configuration shape.
type File struct {
	Output        OutputDescriptor            `json:"output"`
	Sources       map[string]SourceDescriptor `json:"sources"`
	InitialSource string                      `json:"initial_source,omitempty"`
	FadeMS        int                         `json:"fade_ms,omitempty"`
}
