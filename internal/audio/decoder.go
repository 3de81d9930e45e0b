package audio

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

// SourceDecoder demuxes and decodes the best audio stream of one input URL.
// It is pull-based: each Pull surfaces exactly one decoded frame, even when
// a packet produces several.
type SourceDecoder struct {
	fc       *astiav.FormatContext
	cc       *astiav.CodecContext
	stream   *astiav.Stream
	pkt      *astiav.Packet
	frame    *astiav.Frame
	draining bool
}

// OpenSourceDecoder opens url with an optional container format hint.
// options are passed through opaquely to the demuxer on top of the usual
// reconnect settings for network inputs.
func OpenSourceDecoder(url, formatHint string, options map[string]string) (*SourceDecoder, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("alloc format context")
	}

	dict := astiav.NewDictionary()
	defer dict.Free()
	_ = dict.Set("reconnect", "1", 0)
	_ = dict.Set("reconnect_streamed", "1", 0)
	_ = dict.Set("reconnect_delay_max", "5", 0)
	for k, v := range options {
		_ = dict.Set(k, v, 0)
	}

	var inputFormat *astiav.InputFormat
	if formatHint != "" {
		if inputFormat = astiav.FindInputFormat(formatHint); inputFormat == nil {
			fc.Free()
			return nil, fmt.Errorf("unknown input format %q", formatHint)
		}
	}

	if err := fc.OpenInput(url, inputFormat, dict); err != nil {
		fc.Free()
		return nil, fmt.Errorf("open input: %w", err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("find stream info: %w", err)
	}

	st, codec, err := fc.FindBestStream(astiav.MediaTypeAudio, -1, -1)
	if err != nil || st == nil || codec == nil {
		fc.CloseInput()
		fc.Free()
		if err != nil {
			return nil, fmt.Errorf("find best audio stream: %w", err)
		}
		return nil, errors.New("no audio stream found")
	}

	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		fc.CloseInput()
		fc.Free()
		return nil, errors.New("alloc codec context")
	}
	if err := cc.FromCodecParameters(st.CodecParameters()); err != nil {
		cc.Free()
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("codec from params: %w", err)
	}
	cc.SetTimeBase(st.TimeBase())
	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("open decoder: %w", err)
	}

	pkt := astiav.AllocPacket()
	if pkt == nil {
		cc.Free()
		fc.CloseInput()
		fc.Free()
		return nil, errors.New("alloc packet")
	}
	frame := astiav.AllocFrame()
	if frame == nil {
		pkt.Free()
		cc.Free()
		fc.CloseInput()
		fc.Free()
		return nil, errors.New("alloc frame")
	}

	return &SourceDecoder{fc: fc, cc: cc, stream: st, pkt: pkt, frame: frame}, nil
}

func (d *SourceDecoder) Close() {
	if d.frame != nil {
		d.frame.Free()
		d.frame = nil
	}
	if d.pkt != nil {
		d.pkt.Free()
		d.pkt = nil
	}
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	if d.fc != nil {
		d.fc.CloseInput()
		d.fc.Free()
		d.fc = nil
	}
}

// Spec describes the decoded frames. Some codecs report no channel layout;
// fall back to a default layout for the channel count.
func (d *SourceDecoder) Spec() SampleSpec {
	layout := d.cc.ChannelLayout()
	if !layout.Valid() || layout.Channels() == 0 {
		switch layout.Channels() {
		case 1:
			layout = astiav.ChannelLayoutMono
		default:
			layout = astiav.ChannelLayoutStereo
		}
	}
	return SampleSpec{
		SampleRate:    d.cc.SampleRate(),
		ChannelLayout: layout,
		SampleFormat:  d.cc.SampleFormat(),
	}
}

// Pull returns the next decoded audio frame, ErrEndOfSource once the input
// is exhausted, or a wrapped error on fatal decode conditions. Transient
// (EAGAIN) conditions are retried internally and never surface. The returned
// frame is owned by the decoder and is only valid until the next call.
func (d *SourceDecoder) Pull() (*astiav.Frame, error) {
	for {
		d.frame.Unref()
		err := d.cc.ReceiveFrame(d.frame)
		if err == nil {
			return d.frame, nil
		}
		if astErr, ok := err.(astiav.Error); ok && astErr.Is(astiav.ErrEof) {
			return nil, ErrEndOfSource
		}
		if astErr, ok := err.(astiav.Error); !ok || !astErr.Is(astiav.ErrEagain) {
			return nil, fmt.Errorf("receive frame: %w", err)
		}

		// decoder wants another packet
		if err := d.feedPacket(); err != nil {
			return nil, err
		}
	}
}

// feedPacket reads demuxed packets until one has been handed to the decoder
// or the input hits EOF, in which case the decoder is put into drain mode.
func (d *SourceDecoder) feedPacket() error {
	if d.draining {
		// the decoder asked for data after the flush packet; nothing left
		return ErrEndOfSource
	}
	for {
		d.pkt.Unref()
		if err := d.fc.ReadFrame(d.pkt); err != nil {
			if astErr, ok := err.(astiav.Error); ok && astErr.Is(astiav.ErrEof) {
				d.draining = true
				if err := d.cc.SendPacket(nil); err != nil {
					if astErr, ok := err.(astiav.Error); !ok || !astErr.Is(astiav.ErrEof) {
						return fmt.Errorf("flush decoder: %w", err)
					}
				}
				return nil
			}
			if astErr, ok := err.(astiav.Error); ok && astErr.Is(astiav.ErrEagain) {
				continue
			}
			return fmt.Errorf("read packet: %w", err)
		}
		if d.pkt.StreamIndex() != d.stream.Index() {
			continue
		}
		if err := d.cc.SendPacket(d.pkt); err != nil {
			return fmt.Errorf("send packet: %w", err)
		}
		return nil
	}
}
