package control

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchConfig reloads the registry when the configuration file changes on
// disk. Watching the directory rather than the file survives the atomic
// replace-by-rename the registry itself performs.
func (c *Controller) watchConfig(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.logger.Warn().Err(err).Msg("config watcher unavailable")
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(c.registry.Path())
	if err := watcher.Add(dir); err != nil {
		c.logger.Warn().Err(err).Str("dir", dir).Msg("cannot watch config directory")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(c.registry.Path()) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := c.registry.Reload(); err != nil {
				c.logger.Warn().Err(err).Msg("config reload failed")
				continue
			}
			c.logger.Info().Msg("configuration reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}
