package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jward/understory/internal/frontend"
)

const watchDebounce = 300 * time.Millisecond

// watch runs check once, then again after every burst of changes to a
// supported source file or a YAML configuration file under root, until
// ctx is cancelled.
func watch(ctx context.Context, root string, check func(ctx context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return outputError("check", fmt.Errorf("watch init failed: %w", err))
	}
	defer watcher.Close()

	if err := addWatchRecursive(watcher, root); err != nil {
		return outputError("check", fmt.Errorf("watch failed: %w", err))
	}

	check(ctx)
	fmt.Fprintf(os.Stderr, "Watching %s for changes (Ctrl-C to stop)\n", root)

	// The timer only signals; checks run on this goroutine so they never
	// overlap.
	fire := make(chan struct{}, 1)
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addWatchRecursive(watcher, ev.Name)
					continue
				}
			}
			if !relevant(root, ev.Name) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			check(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		}
	}
}

// relevant reports whether a change to path should trigger a re-run.
func relevant(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != defaultConfigName {
			return false
		}
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return true
	}
	_, ok := frontend.LanguageForFile(path)
	return ok
}

// addWatchRecursive watches root and every directory below it, skipping
// hidden directories and the ones discovery skips.
func addWatchRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (strings.HasPrefix(d.Name(), ".") || frontend.SkipDir(d.Name())) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
