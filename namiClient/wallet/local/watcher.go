package local

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// watchDebounce coalesces the burst of events a single keyring write produces.
const watchDebounce = 250 * time.Millisecond

// keyringWatcher calls its handler after files in the keyring directory
// change.
type keyringWatcher struct {
	fsw    *fsnotify.Watcher
	logger zerolog.Logger

	mu      sync.Mutex
	handler func()
	timer   *time.Timer

	done chan struct{}
	once sync.Once
}

func newKeyringWatcher(dir string, logger zerolog.Logger, handler func()) (*keyringWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &keyringWatcher{
		fsw:     fsw,
		logger:  logger,
		handler: handler,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *keyringWatcher) setHandler(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = fn
}

func (w *keyringWatcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("keyring changed")
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("keyring watch error")
		}
	}
}

func (w *keyringWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watchDebounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		w.mu.Lock()
		fn := w.handler
		w.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

func (w *keyringWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.fsw.Close()
	})
	return err
}
