package engine

import (
	"fmt"

	"github.com/gcbaptista/docingest/config"
	internalErrors "github.com/gcbaptista/docingest/internal/errors"
)

// UpdateIndexSettings applies a new settings value to an existing
// index. The index name itself cannot be changed through this call;
// use RenameIndex instead. Settings affecting how future batches are
// ingested (update method, compression, memory budget) take effect on
// the next AddDocuments call. Changing the primary key name does not
// retroactively relabel already-stored documents; use RemapFieldsAsync
// after a primary key change to rebuild the field registry cleanly.
func (e *Engine) UpdateIndexSettings(name string, settings config.IndexSettings) error {
	settings.Name = name
	if err := settings.Validate(); err != nil {
		return internalErrors.NewValidationError("settings", err.Error())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	instance, exists := e.indexes[name]
	if !exists {
		return internalErrors.NewIndexNotFoundError(name)
	}

	instance.settings = &settings
	if err := e.persistInstanceUnsafe(name, instance); err != nil {
		return fmt.Errorf("persisting updated settings for index '%s': %w", name, err)
	}
	return nil
}
