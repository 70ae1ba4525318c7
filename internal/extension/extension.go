// Package extension checks that the built DevTools extension is in place
// before any browser is started.
package extension

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ManifestName is the file that marks a finished extension build.
const ManifestName = "manifest.json"

// ErrManifestMissing is returned when the extension has not been built.
var ErrManifestMissing = errors.New("extension manifest not found")

// Check returns the absolute extension directory if dir contains a manifest.
func Check(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve extension dir %s: %w", dir, err)
	}
	manifest := filepath.Join(abs, ManifestName)
	fi, err := os.Stat(manifest)
	if err != nil || !fi.Mode().IsRegular() {
		return "", fmt.Errorf("couldn't find extension manifest at %s, have you built the extension?: %w", manifest, ErrManifestMissing)
	}
	return abs, nil
}

// WaitForBuild blocks until dir contains a manifest, for use while the
// extension is still being built. The directory itself may not exist yet, as
// long as its parent does.
func WaitForBuild(ctx context.Context, dir string, log *zap.Logger) (string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if abs, err := Check(dir); err == nil {
		return abs, nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve extension dir %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("watch extension dir: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return "", fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	watchingDir := watcher.Add(abs) == nil

	// The build may have finished between the first Check and the watch.
	if found, err := Check(abs); err == nil {
		return found, nil
	}

	log.Info("waiting for extension build", zap.String("dir", abs))
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for %s: %w", filepath.Join(abs, ManifestName), ctx.Err())
		case err, ok := <-watcher.Errors:
			if !ok {
				return "", errors.New("extension watcher closed")
			}
			log.Warn("extension watcher error", zap.Error(err))
		case ev, ok := <-watcher.Events:
			if !ok {
				return "", errors.New("extension watcher closed")
			}
			if !watchingDir && ev.Name == abs && ev.Has(fsnotify.Create) {
				watchingDir = watcher.Add(abs) == nil
			}
			if found, err := Check(abs); err == nil {
				log.Info("extension build ready", zap.String("dir", found))
				return found, nil
			}
		}
	}
}
