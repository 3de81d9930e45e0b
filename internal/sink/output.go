package sink

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/rs/zerolog"

	"github.com/fondueaudio/fondue/internal/audio"
)

// Config describes the outbound stream: where it goes, how it is contained
// and how it is encoded.
type Config struct {
	URL          string
	Format       string // container, e.g. "mp3", "ogg", "adts", "flv"
	Codec        string // encoder name, e.g. "libmp3lame", "aac"
	BitRate      int64
	SampleRate   int
	Channels     int
	SampleFormat string // encoder sample format; defaults to fltp
}

// OutputStream opens the configured encoder and muxer at construction and
// then encodes one output-profile frame per WriteFrame. Its lifetime spans
// the whole program; failure to open it is fatal at startup.
type OutputStream struct {
	fc      *astiav.FormatContext
	ioc     *astiav.IOContext
	cc      *astiav.CodecContext
	st      *astiav.Stream
	pkt     *astiav.Packet
	profile audio.OutputProfile
	samples int64 // running PTS in samples
	logger  zerolog.Logger
}

func sampleFormatFromName(name string) (astiav.SampleFormat, error) {
	switch name {
	case "", "fltp":
		return astiav.SampleFormatFltp, nil
	case "flt":
		return astiav.SampleFormatFlt, nil
	case "s16":
		return astiav.SampleFormatS16, nil
	case "s16p":
		return astiav.SampleFormatS16P, nil
	}
	return 0, fmt.Errorf("unsupported sample format %q", name)
}

func NewOutputStream(cfg Config, logger zerolog.Logger) (*OutputStream, error) {
	if cfg.URL == "" {
		return nil, errors.New("output url is required")
	}

	codec := astiav.FindEncoderByName(cfg.Codec)
	if codec == nil {
		return nil, fmt.Errorf("encoder %q not found", cfg.Codec)
	}

	sampleFormat, err := sampleFormatFromName(cfg.SampleFormat)
	if err != nil {
		return nil, err
	}

	layout := astiav.ChannelLayoutStereo
	if cfg.Channels == 1 {
		layout = astiav.ChannelLayoutMono
	}

	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, errors.New("alloc codec context")
	}
	cc.SetSampleRate(cfg.SampleRate)
	cc.SetChannelLayout(layout)
	cc.SetSampleFormat(sampleFormat)
	cc.SetBitRate(cfg.BitRate)
	cc.SetTimeBase(astiav.NewRational(1, cfg.SampleRate))

	fc, err := astiav.AllocOutputFormatContext(nil, cfg.Format, cfg.URL)
	if err != nil {
		cc.Free()
		return nil, fmt.Errorf("alloc output format context: %w", err)
	}
	if fc == nil {
		cc.Free()
		return nil, errors.New("alloc output format context")
	}

	if fc.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader) {
		cc.SetFlags(cc.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	if err := cc.Open(codec, nil); err != nil {
		fc.Free()
		cc.Free()
		return nil, fmt.Errorf("open encoder (codec=%s sr=%d ch=%d): %w",
			cfg.Codec, cfg.SampleRate, layout.Channels(), err)
	}

	st := fc.NewStream(codec)
	if st == nil {
		fc.Free()
		cc.Free()
		return nil, errors.New("alloc output stream")
	}
	if err := st.CodecParameters().FromCodecContext(cc); err != nil {
		fc.Free()
		cc.Free()
		return nil, fmt.Errorf("stream codec parameters: %w", err)
	}
	st.SetTimeBase(cc.TimeBase())

	var ioc *astiav.IOContext
	if !fc.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		ioc, err = astiav.OpenIOContext(cfg.URL, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil)
		if err != nil {
			fc.Free()
			cc.Free()
			return nil, fmt.Errorf("open output %q: %w", cfg.URL, err)
		}
		fc.SetPb(ioc)
	}

	if err := fc.WriteHeader(nil); err != nil {
		if ioc != nil {
			_ = ioc.Close()
		}
		fc.Free()
		cc.Free()
		return nil, fmt.Errorf("write header: %w", err)
	}

	pkt := astiav.AllocPacket()
	if pkt == nil {
		if ioc != nil {
			_ = ioc.Close()
		}
		fc.Free()
		cc.Free()
		return nil, errors.New("alloc packet")
	}

	frameSamples := cc.FrameSize()
	if frameSamples <= 0 {
		// variable frame size codec
		frameSamples = audio.DefaultFrameSize
	}

	o := &OutputStream{
		fc:  fc,
		ioc: ioc,
		cc:  cc,
		st:  st,
		pkt: pkt,
		profile: audio.OutputProfile{
			SampleRate:    cc.SampleRate(),
			ChannelLayout: cc.ChannelLayout(),
			SampleFormat:  cc.SampleFormat(),
			FrameSamples:  frameSamples,
		},
		logger: logger.With().Str("component", "sink").Str("url", cfg.URL).Logger(),
	}
	o.logger.Info().
		Str("codec", cfg.Codec).
		Int("sample_rate", o.profile.SampleRate).
		Int("frame_samples", o.profile.FrameSamples).
		Msg("output opened")
	return o, nil
}

// Profile is the output configuration every source gets normalized to.
func (o *OutputStream) Profile() audio.OutputProfile { return o.profile }

// WriteFrame encodes one output-profile frame and muxes the resulting
// packets. The frame's PTS is stamped from the running sample count.
func (o *OutputStream) WriteFrame(f *astiav.Frame) error {
	f.SetPts(o.samples)
	o.samples += int64(f.NbSamples())
	if err := o.cc.SendFrame(f); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return o.receivePackets()
}

func (o *OutputStream) receivePackets() error {
	for {
		o.pkt.Unref()
		if err := o.cc.ReceivePacket(o.pkt); err != nil {
			if astErr, ok := err.(astiav.Error); ok && (astErr.Is(astiav.ErrEagain) || astErr.Is(astiav.ErrEof)) {
				return nil
			}
			return fmt.Errorf("receive packet: %w", err)
		}
		o.pkt.SetStreamIndex(o.st.Index())
		o.pkt.RescaleTs(o.cc.TimeBase(), o.st.TimeBase())
		if err := o.fc.WriteInterleavedFrame(o.pkt); err != nil {
			return fmt.Errorf("write packet: %w", err)
		}
	}
}

// FinishStreaming drains the encoder, writes the trailer and closes the
// output.
func (o *OutputStream) FinishStreaming() error {
	o.logger.Info().Int64("samples", o.samples).Msg("finishing stream")
	if err := o.cc.SendFrame(nil); err != nil {
		if astErr, ok := err.(astiav.Error); !ok || !astErr.Is(astiav.ErrEof) {
			return fmt.Errorf("flush encoder: %w", err)
		}
	}
	if err := o.receivePackets(); err != nil {
		return err
	}
	if err := o.fc.WriteTrailer(); err != nil {
		return fmt.Errorf("write trailer: %w", err)
	}
	o.Close()
	return nil
}

// Close frees everything without flushing; FinishStreaming is the graceful
// path and calls it.
func (o *OutputStream) Close() {
	if o.pkt != nil {
		o.pkt.Free()
		o.pkt = nil
	}
	if o.cc != nil {
		o.cc.Free()
		o.cc = nil
	}
	if o.ioc != nil {
		_ = o.ioc.Close()
		o.ioc = nil
	}
	if o.fc != nil {
		o.fc.Free()
		o.fc = nil
	}
}
