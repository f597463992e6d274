package session

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// RuleWatcher hot-reloads a JSON rule table into a FieldValidator when
// the file changes on disk. Reloads are debounced; a file that fails to
// parse leaves the previous rules in place.
type RuleWatcher struct {
	watcher   *fsnotify.Watcher
	validator *FieldValidator
	path      string
	logger    zerolog.Logger
	debounce  time.Duration
	timer     *time.Timer
	stopCh    chan struct{}
}

// NewRuleWatcher loads the rule file, installs it on the validator, and
// starts watching for changes.
func NewRuleWatcher(path string, validator *FieldValidator, logger zerolog.Logger) (*RuleWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	rw := &RuleWatcher{
		watcher:   watcher,
		validator: validator,
		path:      path,
		logger:    logger,
		debounce:  500 * time.Millisecond,
		stopCh:    make(chan struct{}),
	}

	if err := rw.reload(); err != nil {
		watcher.Close()
		return nil, err
	}

	// Watch the directory, not the file: editors replace files on
	// save, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	go rw.run()
	return rw, nil
}

// Stop stops the watcher.
func (rw *RuleWatcher) Stop() error {
	close(rw.stopCh)
	return rw.watcher.Close()
}

func (rw *RuleWatcher) run() {
	for {
		select {
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(rw.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				rw.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Rule file change detected")
				rw.scheduleReload()
			}

		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.logger.Error().Err(err).Msg("Rule watcher error")

		case <-rw.stopCh:
			return
		}
	}
}

func (rw *RuleWatcher) scheduleReload() {
	if rw.timer != nil {
		rw.timer.Stop()
	}
	rw.timer = time.AfterFunc(rw.debounce, func() {
		if err := rw.reload(); err != nil {
			rw.logger.Error().Err(err).Msg("Rule reload failed, keeping previous rules")
		}
	})
}

func (rw *RuleWatcher) reload() error {
	data, err := os.ReadFile(rw.path)
	if err != nil {
		return err
	}
	rules, err := ParseRuleTable(data)
	if err != nil {
		return err
	}
	rw.validator.SetRules(rules)
	rw.logger.Info().Int("rules", len(rules)).Msg("Validation rules loaded")
	return nil
}
