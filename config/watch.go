package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Watcher reloads a Config from disk whenever its backing file changes
// on disk, handing the new value to onChange. Grounded on fsnotify's
// standard single-file watch idiom (the library's own example, and the
// shape dtn7-dtn7-gold's discovery package uses for "pick up external
// change" notification).
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	log     *logrus.Entry
	done    chan struct{}
}

// WatchFile starts watching path, calling onChange once immediately
// with the current contents and again on every subsequent write.
func WatchFile(path string, log *logrus.Entry, onChange func(Config)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "config: create fsnotify watcher")
	}

	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "config: watch %s", path)
	}

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	w := &Watcher{
		watcher: fw,
		path:    path,
		log:     log.WithField("config", path),
		done:    make(chan struct{}),
	}

	onChange(cfg)
	go w.loop(onChange)

	return w, nil
}

func (w *Watcher) loop(onChange func(Config)) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := Load(w.path)
			if err != nil {
				w.log.WithError(err).Warn("config reload failed, keeping previous values")
				continue
			}

			w.log.Info("config reloaded")
			onChange(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("config watcher error")

		case <-w.done:
			return
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
