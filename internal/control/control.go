package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fondueaudio/fondue/internal/audio"
	"github.com/fondueaudio/fondue/internal/config"
)

// Engine is the part of the audio engine the controller needs: staging an
// incoming source for the next crossfade.
type Engine interface {
	Arm(*audio.InputStream)
}

// Controller is the control thread. It reads operator commands line by line
// and manipulates the shared control block through the engine.
type Controller struct {
	engine   Engine
	flags    *audio.ControlFlags
	registry *config.Registry
	profile  audio.OutputProfile
	in       io.Reader
	out      io.Writer
	logger   zerolog.Logger
}

func New(engine Engine, flags *audio.ControlFlags, registry *config.Registry,
	profile audio.OutputProfile, in io.Reader, out io.Writer, logger zerolog.Logger) *Controller {

	return &Controller{
		engine:   engine,
		flags:    flags,
		registry: registry,
		profile:  profile,
		in:       in,
		out:      out,
		logger:   logger.With().Str("component", "control").Logger(),
	}
}

// Run processes commands until kill, input EOF with cancellation, or ctx
// cancellation. The config file is watched in the background so edits made
// outside the daemon show up in list-sources.
func (c *Controller) Run(ctx context.Context) error {
	go c.watchConfig(ctx)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			if err != nil {
				c.logger.Warn().Err(err).Msg("command input failed")
			}
			// input closed; keep streaming until the daemon is stopped
			<-ctx.Done()
			return nil
		case line := <-lines:
			if c.handle(strings.TrimSpace(line)) {
				return nil
			}
		}
	}
}

// handle executes one command; it reports true once the daemon should stop.
func (c *Controller) handle(line string) bool {
	switch {
	case line == "":
	case line == "kill":
		c.logger.Info().Msg("shutdown requested")
		c.flags.Stop()
		return true

	case line == "list-sources":
		for _, name := range c.registry.Names() {
			d, _ := c.registry.Lookup(name)
			fmt.Fprintf(c.out, "%s : %s\n", name, d.URL)
		}

	case strings.HasPrefix(line, "add-source "):
		fields := strings.Fields(line)
		if len(fields) != 3 {
			fmt.Fprintln(c.out, "usage: add-source <name> <url>")
			break
		}
		name, url := fields[1], fields[2]
		if err := c.registry.Add(name, config.SourceDescriptor{URL: url}); err != nil {
			c.logger.Error().Err(err).Str("source", name).Msg("add-source failed")
			break
		}
		fmt.Fprintf(c.out, "added %s\n", name)

	case strings.HasPrefix(line, "play "):
		name := strings.TrimSpace(strings.TrimPrefix(line, "play "))
		c.play(name)

	default:
		c.logger.Warn().Str("command", line).Msg("unknown command")
	}
	return false
}

// play opens the named source and stages it; the audio thread picks it up
// and crossfades on its next iteration.
func (c *Controller) play(name string) {
	d, ok := c.registry.Lookup(name)
	if !ok {
		fmt.Fprintf(c.out, "unknown source %q\n", name)
		return
	}
	s, err := audio.OpenInputStream(d.URL, d.Format, d.Options, c.profile,
		audio.TimingRealtime, audio.SynthWhiteNoise, c.logger)
	if err != nil {
		c.logger.Error().Err(err).Str("source", name).Msg("cannot open source")
		fmt.Fprintf(c.out, "cannot open %q: %v\n", name, err)
		return
	}
	c.logger.Info().Str("source", name).Msg("source armed")
	c.engine.Arm(s)
}
