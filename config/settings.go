// Package config provides configuration structures for the document
// ingestion engine: per-index settings governing how a batch of
// documents is transformed and stored.
package config

import (
	"fmt"

	"github.com/gcbaptista/docingest/internal/extsort"
	"github.com/gcbaptista/docingest/internal/transform"
)

// IndexSettings contains all configuration options for an index's
// ingestion behavior.
type IndexSettings struct {
	Name                 string              `json:"name"`                    // Unique name for the index
	PrimaryKey           string              `json:"primary_key,omitempty"`   // Stored primary-key field name, if resolved
	AutogenerateDocIDs   bool                `json:"autogenerate_doc_ids"`    // Synthesize a document id when a batch doesn't supply one
	UpdateMethod         transform.UpdateMethod `json:"update_method"`        // How colliding external ids are resolved within and across batches
	ChunkCompressionType extsort.Codec       `json:"chunk_compression_type"`  // Compression applied to spilled external-sort runs
	ChunkCompressionLevel int                `json:"chunk_compression_level"` // Compression level, where the codec supports one
	MaxNbChunks          int                 `json:"max_nb_chunks"`           // Cap on spilled sort-run files; stored and validated, not passed to the ingestion sorters
	MaxMemory            int                 `json:"max_memory"`              // Bytes of (key, value) pairs buffered before a sort run spills
	LogEveryN            int                 `json:"log_every_n"`             // Progress cadence in documents; stored only, ingestion reports a progress event for every document
}

// DefaultIndexSettings returns the settings a newly created index starts
// with absent any explicit configuration.
func DefaultIndexSettings(name string) IndexSettings {
	return IndexSettings{
		Name:                  name,
		AutogenerateDocIDs:    true,
		UpdateMethod:          transform.ReplaceDocuments,
		ChunkCompressionType:  extsort.CodecSnappy,
		ChunkCompressionLevel: 0,
		MaxNbChunks:           100,
		MaxMemory:             64 * 1024 * 1024,
		LogEveryN:             1000,
	}
}

// Validate checks settings for internally inconsistent values.
func (s *IndexSettings) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("config: index name must not be empty")
	}
	switch s.UpdateMethod {
	case transform.ReplaceDocuments, transform.UpdateDocuments, "":
	default:
		return fmt.Errorf("config: unknown update method %q", s.UpdateMethod)
	}
	if s.MaxMemory < 0 {
		return fmt.Errorf("config: max_memory must not be negative")
	}
	if s.MaxNbChunks < 0 {
		return fmt.Errorf("config: max_nb_chunks must not be negative")
	}
	return nil
}
