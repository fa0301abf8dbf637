package profile

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/a2y-d5l/pyfreeze/logger"
)

// Watch calls onChange with the freshly loaded profile every time the file
// at path is written or re-created, until ctx is cancelled. The initial load
// is reported too. Load errors are passed to onChange rather than ending the
// watch, so an editor saving a half-written file does not stop it.
//
// The parent directory is watched instead of the file itself because many
// editors save by renaming a temporary file over the original.
func Watch(ctx context.Context, path string, onChange func(*Profile, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	onChange(Load(abs))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			logger.Debug(ctx, "Profile changed", "file", abs, "op", event.Op.String())
			onChange(Load(abs))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error(ctx, "Watcher error", "err", err)
		}
	}
}
