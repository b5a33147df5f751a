package engine

import (
	"fmt"

	"github.com/gcbaptista/docingest/config"
	internalErrors "github.com/gcbaptista/docingest/internal/errors"
)

// CreateIndex creates a new, empty index with the given settings.
func (e *Engine) CreateIndex(settings config.IndexSettings) error {
	if err := settings.Validate(); err != nil {
		return internalErrors.NewValidationError("settings", err.Error())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.indexes[settings.Name]; exists {
		return internalErrors.NewIndexAlreadyExistsError(settings.Name)
	}

	instance, err := NewIndexInstance(settings)
	if err != nil {
		return fmt.Errorf("creating index '%s': %w", settings.Name, err)
	}

	if err := e.persistInstanceUnsafe(settings.Name, instance); err != nil {
		return fmt.Errorf("persisting new index '%s': %w", settings.Name, err)
	}

	e.indexes[settings.Name] = instance
	return nil
}

// DeleteIndex removes an index and its persisted data.
func (e *Engine) DeleteIndex(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.indexes[name]; !exists {
		return internalErrors.NewIndexNotFoundError(name)
	}

	if err := e.removeIndexDir(name); err != nil {
		return err
	}
	delete(e.indexes, name)
	return nil
}

// RenameIndex renames an existing index, moving its persisted data
// under the new name.
func (e *Engine) RenameIndex(oldName, newName string) error {
	if oldName == newName {
		return internalErrors.NewSameNameError(newName)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	instance, exists := e.indexes[oldName]
	if !exists {
		return internalErrors.NewIndexNotFoundError(oldName)
	}
	if _, exists := e.indexes[newName]; exists {
		return internalErrors.NewIndexAlreadyExistsError(newName)
	}

	renamed := instance.Settings()
	renamed.Name = newName
	instance.settings = &renamed

	if err := e.persistInstanceUnsafe(newName, instance); err != nil {
		return fmt.Errorf("persisting renamed index '%s': %w", newName, err)
	}
	if err := e.removeIndexDir(oldName); err != nil {
		return err
	}

	delete(e.indexes, oldName)
	e.indexes[newName] = instance
	return nil
}
