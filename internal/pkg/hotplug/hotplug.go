// Package hotplug watches /dev/input for event device nodes coming and
// going, so long-running consumers can attach to devices plugged in
// after startup.
package hotplug

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/evsync/evsync/internal/pkg/logger"
)

var log = logger.GetLogger()

const inputDir = "/dev/input"

type Action int

const (
	Attach Action = iota
	Detach
)

func (a Action) String() string {
	if a == Attach {
		return "attach"
	}
	return "detach"
}

// Notification reports one event device node appearing or disappearing.
type Notification struct {
	Path   string
	Action Action
}

// Monitor reports event device nodes under /dev/input as they come and
// go. Devices already present when monitoring starts are reported as
// attached first. The channel closes when ctx is cancelled.
func Monitor(ctx context.Context) (<-chan Notification, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(inputDir); err != nil {
		watcher.Close()
		return nil, err
	}

	// Watch first, scan second: a device plugged in between the scan and
	// the watch would otherwise be missed. The other way round it is at
	// worst reported twice.
	existing, err := scan()
	if err != nil {
		watcher.Close()
		return nil, err
	}

	notifications := make(chan Notification)
	go func() {
		defer close(notifications)

		go func() {
			<-ctx.Done()
			if err := watcher.Close(); err != nil {
				log.Info("closing device watcher failed", zap.Error(err))
			}
		}()

		for _, path := range existing {
			notifications <- Notification{Path: path, Action: Attach}
		}

		for event := range watcher.Events {
			if !isEventNode(event.Name) {
				continue
			}
			switch {
			case event.Op&fsnotify.Create != 0:
				log.Info("device attached", zap.String("device_path", event.Name))
				notifications <- Notification{Path: event.Name, Action: Attach}
			case event.Op&fsnotify.Remove != 0:
				log.Info("device detached", zap.String("device_path", event.Name))
				notifications <- Notification{Path: event.Name, Action: Detach}
			}
		}
	}()

	return notifications, nil
}

// scan lists the event device nodes currently present.
func scan() ([]string, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		path := filepath.Join(inputDir, entry.Name())
		if isEventNode(path) {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func isEventNode(path string) bool {
	return strings.HasPrefix(filepath.Base(path), "event")
}
