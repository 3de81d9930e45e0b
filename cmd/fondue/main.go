package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fondueaudio/fondue/internal/audio"
	"github.com/fondueaudio/fondue/internal/config"
	"github.com/fondueaudio/fondue/internal/control"
	"github.com/fondueaudio/fondue/internal/sink"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	registry, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *configPath).Msg("cannot load configuration")
	}

	out := registry.Output()
	sinkStream, err := sink.NewOutputStream(sink.Config{
		URL:          out.URL,
		Format:       out.Format,
		Codec:        out.Codec,
		BitRate:      out.BitRate,
		SampleRate:   out.SampleRate,
		Channels:     out.Channels,
		SampleFormat: out.SampleFormat,
	}, logger)
	if err != nil {
		// the sink is the one thing we cannot stream without
		logger.Fatal().Err(err).Str("url", out.URL).Msg("cannot open output")
	}
	profile := sinkStream.Profile()

	var source *audio.InputStream
	if name, d, ok := registry.InitialSource(); ok {
		source, err = audio.OpenInputStream(d.URL, d.Format, d.Options, profile,
			audio.TimingRealtime, audio.SynthWhiteNoise, logger)
		if err != nil {
			logger.Warn().Err(err).Str("source", name).
				Msg("failed to open input, switching to default source")
		}
	}
	if source == nil {
		source, err = audio.NewSyntheticInputStream(profile, audio.SynthWhiteNoise, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("cannot build default source")
		}
	}

	flags := audio.NewControlFlags()
	engine := audio.NewEngine(sinkStream, source, flags, registry.FadeMS(), logger)
	controller := control.New(engine, flags, registry, profile, os.Stdin, os.Stdout, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return engine.Run()
	})
	g.Go(func() error {
		defer flags.Stop()
		return controller.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		flags.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("clean shutdown")
}
