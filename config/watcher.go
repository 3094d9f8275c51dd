package config

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-reads the configuration file whenever it changes on disk
// and delivers the validated result on Updates. Consumers are expected
// to apply only the runtime-tunable subset (tare parameters, output
// interval); hardware wiring changes need a restart.
type Watcher struct {
	fsw     *fsnotify.Watcher
	updates chan *Config
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher starts watching the config file the given Config was
// loaded from. The containing directory is watched because most
// editors replace the file on save instead of writing in place.
func NewWatcher(conf *Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(conf.Configfile)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsw:     fsw,
		updates: make(chan *Config, 1),
		stop:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run(conf.Configfile, conf.RealHW)
	return w, nil
}

// Updates returns the channel on which reloaded configurations are
// delivered. Reloads that fail to parse or validate are logged and
// dropped; the previous configuration stays in effect.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

func (w *Watcher) run(cfile string, realhw bool) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(cfile) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			conf, err := Load(cfile, realhw)
			if err != nil {
				slog.Warn("Ignoring config reload", "file", cfile, "error", err)
				continue
			}
			slog.Info("Config file changed on disk, delivering reload", "file", cfile)
			select {
			case w.updates <- conf:
			case <-w.stop:
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("Config watcher error", "error", err)
		}
	}
}

// Close stops the watcher and releases the inotify resources.
func (w *Watcher) Close() {
	close(w.stop)
	w.fsw.Close()
	w.wg.Wait()
}
