package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRuleFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestRuleWatcher_LoadsInitialRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	writeRuleFile(t, path, `{"status": {"enum": ["open"]}}`)

	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	validator := NewFieldValidator(nil)

	rw, err := NewRuleWatcher(path, validator, logger)
	require.NoError(t, err)
	defer rw.Stop()

	result := validator.Validate(map[string]interface{}{"status": "bogus"})
	assert.False(t, result.Valid)
}

func TestRuleWatcher_MissingFileFails(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	_, err := NewRuleWatcher(filepath.Join(t.TempDir(), "absent.json"), NewFieldValidator(nil), logger)
	assert.Error(t, err)
}

func TestRuleWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	writeRuleFile(t, path, `{}`)

	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	validator := NewFieldValidator(nil)

	rw, err := NewRuleWatcher(path, validator, logger)
	require.NoError(t, err)
	defer rw.Stop()

	require.True(t, validator.Validate(map[string]interface{}{"status": "bogus"}).Valid)

	writeRuleFile(t, path, `{"status": {"enum": ["open"]}}`)

	// Debounced reload
	assert.Eventually(t, func() bool {
		return !validator.Validate(map[string]interface{}{"status": "bogus"}).Valid
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRuleWatcher_BadReloadKeepsPreviousRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	writeRuleFile(t, path, `{"status": {"enum": ["open"]}}`)

	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	validator := NewFieldValidator(nil)

	rw, err := NewRuleWatcher(path, validator, logger)
	require.NoError(t, err)
	defer rw.Stop()

	writeRuleFile(t, path, "not json")

	// Give the debounce a chance to fire, then confirm the old rules
	// still apply
	time.Sleep(1200 * time.Millisecond)
	assert.False(t, validator.Validate(map[string]interface{}{"status": "bogus"}).Valid)
}
