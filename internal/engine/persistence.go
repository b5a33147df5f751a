package engine

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gcbaptista/docingest/config"
	"github.com/gcbaptista/docingest/internal/docids"
	internalErrors "github.com/gcbaptista/docingest/internal/errors"
	"github.com/gcbaptista/docingest/internal/fielddist"
	"github.com/gcbaptista/docingest/internal/fieldmap"
	"github.com/gcbaptista/docingest/internal/persistence"
	"github.com/gcbaptista/docingest/store"
)

const (
	dataDirPerm = 0750

	settingsFile      = "settings.gob"
	registryFile      = "registry.gob"
	externalIDsFile   = "external_ids.gob"
	allocatorFile     = "allocator.gob"
	distributionFile  = "distribution.gob"
	documentTableFile = "documents.gob"
)

func (e *Engine) indexDir(name string) string {
	return filepath.Join(e.dataDir, name)
}

// loadIndexesFromDisk populates e.indexes from every subdirectory of
// e.dataDir that carries a settings file.
func (e *Engine) loadIndexesFromDisk() error {
	if err := os.MkdirAll(e.dataDir, dataDirPerm); err != nil {
		return fmt.Errorf("creating data directory '%s': %w", e.dataDir, err)
	}

	entries, err := os.ReadDir(e.dataDir)
	if err != nil {
		return fmt.Errorf("reading data directory '%s': %w", e.dataDir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		dir := e.indexDir(name)

		var settings config.IndexSettings
		if err := persistence.LoadGob(filepath.Join(dir, settingsFile), &settings); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("loading settings for index '%s': %w", name, err)
		}

		instance, err := loadIndexInstance(dir, settings)
		if err != nil {
			return fmt.Errorf("loading index '%s': %w", name, err)
		}

		e.indexes[name] = instance
		log.Printf("engine: loaded index '%s' (%d documents)", name, instance.DocumentCount())
	}
	return nil
}

func loadIndexInstance(dir string, settings config.IndexSettings) (*IndexInstance, error) {
	registry := fieldmap.NewRegistry()
	if err := persistence.LoadGob(filepath.Join(dir, registryFile), registry); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading field registry: %w", err)
	}

	externalIDs := docids.NewExternalIDMap()
	if err := persistence.LoadGob(filepath.Join(dir, externalIDsFile), externalIDs); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading external id map: %w", err)
	}

	allocator := docids.NewAllocator()
	if err := persistence.LoadGob(filepath.Join(dir, allocatorFile), allocator); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading id allocator: %w", err)
	}

	distribution := fielddist.New()
	if err := persistence.LoadGob(filepath.Join(dir, distributionFile), &distribution); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading field distribution: %w", err)
	}

	documentTable := store.NewDocumentTable()
	if err := persistence.LoadGob(filepath.Join(dir, documentTableFile), documentTable); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading document table: %w", err)
	}

	return &IndexInstance{
		settings:      &settings,
		Registry:      registry,
		ExternalIDs:   externalIDs,
		Allocator:     allocator,
		Distribution:  distribution,
		DocumentTable: documentTable,
	}, nil
}

// PersistIndexData writes the named index's full state to disk.
func (e *Engine) PersistIndexData(indexName string) error {
	e.mu.RLock()
	instance, exists := e.indexes[indexName]
	e.mu.RUnlock()
	if !exists {
		return internalErrors.NewIndexNotFoundError(indexName)
	}
	return e.persistInstanceUnsafe(indexName, instance)
}

// persistInstanceUnsafe writes instance's state to disk. Callers must
// hold e.mu for at least reading, and must ensure instance itself is
// not concurrently mutated.
func (e *Engine) persistInstanceUnsafe(indexName string, instance *IndexInstance) error {
	dir := e.indexDir(indexName)
	if err := os.MkdirAll(dir, dataDirPerm); err != nil {
		return fmt.Errorf("creating directory for index '%s': %w", indexName, err)
	}

	settings := instance.Settings()
	if err := persistence.SaveGob(filepath.Join(dir, settingsFile), &settings); err != nil {
		return fmt.Errorf("persisting settings for index '%s': %w", indexName, err)
	}
	if err := persistence.SaveGob(filepath.Join(dir, registryFile), instance.Registry); err != nil {
		return fmt.Errorf("persisting field registry for index '%s': %w", indexName, err)
	}
	if err := persistence.SaveGob(filepath.Join(dir, externalIDsFile), instance.ExternalIDs); err != nil {
		return fmt.Errorf("persisting external id map for index '%s': %w", indexName, err)
	}
	if err := persistence.SaveGob(filepath.Join(dir, allocatorFile), instance.Allocator); err != nil {
		return fmt.Errorf("persisting id allocator for index '%s': %w", indexName, err)
	}
	if err := persistence.SaveGob(filepath.Join(dir, distributionFile), &instance.Distribution); err != nil {
		return fmt.Errorf("persisting field distribution for index '%s': %w", indexName, err)
	}
	if err := persistence.SaveGob(filepath.Join(dir, documentTableFile), instance.DocumentTable); err != nil {
		return fmt.Errorf("persisting document table for index '%s': %w", indexName, err)
	}
	return nil
}

func (e *Engine) removeIndexDir(indexName string) error {
	dir := e.indexDir(indexName)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing data directory for index '%s': %w", indexName, err)
	}
	return nil
}
