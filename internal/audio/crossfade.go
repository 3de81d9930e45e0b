package audio

import "time"

// crossfade drives outgoing and incoming through a timed linear mix and
// returns the stream that ends up owning the output. The loser is closed
// before returning.
//
// Failure handling: if either init fails the fade is abandoned and the
// outgoing stream keeps the output. If the incoming source fails mid-fade
// the fade is abandoned the same way. If the outgoing source fails mid-fade
// it is replaced by a silence synthetic stream and the fade continues, so
// listeners hear the incoming source fading up against silence.
func (e *Engine) crossfade(outgoing, incoming *InputStream, deadline *time.Time) *InputStream {
	if incoming == nil {
		return outgoing
	}

	remaining := e.fadeMS
	total := e.fadeMS

	if err := outgoing.InitCrossfade(); err != nil {
		e.logger.Warn().Err(err).Msg("crossfade init failed on outgoing source")
		incoming.Close()
		if err := outgoing.EndCrossfade(); err != nil {
			e.logger.Warn().Err(err).Msg("end crossfade failed")
		}
		return outgoing
	}
	if err := incoming.InitCrossfade(); err != nil {
		e.logger.Warn().Err(err).Msg("crossfade init failed on incoming source")
		incoming.Close()
		if err := outgoing.EndCrossfade(); err != nil {
			e.logger.Warn().Err(err).Msg("end crossfade failed")
		}
		return outgoing
	}

	for remaining > 0 && !e.flags.Stopped() {
		if err := incoming.GetOneOutputFrame(); err != nil {
			e.logger.Warn().Err(err).Msg("incoming source failed, crossfade abandoned")
			incoming.Close()
			if err := outgoing.EndCrossfade(); err != nil {
				e.logger.Warn().Err(err).Msg("end crossfade failed")
			}
			return outgoing
		}

		if err := outgoing.CrossfadeFrame(incoming.Frame(), &remaining, total); err != nil {
			e.logger.Warn().Err(err).Msg("outgoing source failed, fading against silence")
			replacement, rerr := NewSyntheticInputStream(e.sink.Profile(), SynthSilence, e.logger)
			if rerr == nil {
				rerr = replacement.InitCrossfade()
			}
			if rerr != nil {
				e.logger.Error().Err(rerr).Msg("cannot build silence source, crossfade abandoned")
				replacement.Close()
				outgoing.Close()
				if err := incoming.EndCrossfade(); err != nil {
					e.logger.Warn().Err(err).Msg("end crossfade failed")
				}
				return incoming
			}
			outgoing.Close()
			outgoing = replacement
			continue
		}

		if err := e.sink.WriteFrame(outgoing.Frame()); err != nil {
			e.logger.Warn().Err(err).Msg("sink refused frame")
		}
		outgoing.Sleep(deadline)
	}

	outgoing.Close()
	if err := incoming.EndCrossfade(); err != nil {
		e.logger.Warn().Err(err).Msg("end crossfade failed")
	}
	return incoming
}
