package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher emits the paths of session transcript files as they are created or
// written under a set of root directories. New subdirectories (fresh
// projects, new date buckets) are added to the watch as they appear, since
// inotify watches are not recursive.
type Watcher struct {
	fw        *fsnotify.Watcher
	out       chan string
	done      chan struct{}
	closeOnce sync.Once
	roots     []string
	log       *logrus.Logger
}

func NewWatcher(roots []string, log *logrus.Logger) (*Watcher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fw:    fw,
		out:   make(chan string, 256),
		done:  make(chan struct{}),
		roots: roots,
		log:   log,
	}

	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			w.log.Warnf("watching %s: %v", root, err)
		}
	}

	go w.loop()
	return w, nil
}

// Events yields transcript file paths on create and write. The channel is
// closed by Close.
func (w *Watcher) Events() <-chan string {
	return w.out
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fw.Close()
	})
	return err
}

// addTree watches a directory and all its subdirectories. A missing root is
// not an error, but since its parent is not watched it is only picked up on
// restart.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.fw.Add(path); err != nil {
				w.log.Warnf("adding watch on %s: %v", path, err)
			}
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer close(w.out)

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warnf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addTree(event.Name)
			return
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !ShouldWatchFile(event.Name) {
		return
	}

	select {
	case w.out <- event.Name:
	default:
		w.log.Warnf("watch queue full, dropping event for %s", event.Name)
	}
}
