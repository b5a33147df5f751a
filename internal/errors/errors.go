package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrIndexNotFound is returned when an index is not found
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexAlreadyExists is returned when trying to create an index that already exists
	ErrIndexAlreadyExists = errors.New("index already exists")

	// ErrDocumentNotFound is returned when a document is not found
	ErrDocumentNotFound = errors.New("document not found")

	// ErrJobNotFound is returned when a job is not found
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrSameName is returned when trying to rename to the same name
	ErrSameName = errors.New("same name provided")

	// ErrAttributeLimitReached is returned when the field registry would
	// grow past its 16-bit id space.
	ErrAttributeLimitReached = errors.New("attribute limit reached")

	// ErrDocumentLimitReached is returned when the internal id allocator
	// has no free id left to hand out.
	ErrDocumentLimitReached = errors.New("document limit reached")

	// ErrMissingPrimaryKey is returned when no primary key can be
	// resolved and autogeneration is disabled.
	ErrMissingPrimaryKey = errors.New("missing primary key")

	// ErrMissingDocumentID is returned when a document has no value
	// under the resolved primary-key field and autogeneration is
	// disabled.
	ErrMissingDocumentID = errors.New("missing document id")

	// ErrInvalidDocumentID is returned when a primary-key value is
	// empty, of the wrong JSON type, or contains disallowed characters.
	ErrInvalidDocumentID = errors.New("invalid document id")

	// ErrDatabaseMissingEntry signals an internal invariant violation:
	// the external id map points at an internal id with no stored
	// record.
	ErrDatabaseMissingEntry = errors.New("database missing entry")

	// ErrIndexingMergingKeys signals an internal invariant violation:
	// the final, internal-id-keyed sorter observed the same key twice.
	ErrIndexingMergingKeys = errors.New("indexing merging keys")
)

// IndexNotFoundError represents an index not found error with context
type IndexNotFoundError struct {
	IndexName string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("index named '%s' not found", e.IndexName)
}

func (e *IndexNotFoundError) Is(target error) bool {
	return target == ErrIndexNotFound
}

// NewIndexNotFoundError creates a new IndexNotFoundError
func NewIndexNotFoundError(indexName string) *IndexNotFoundError {
	return &IndexNotFoundError{IndexName: indexName}
}

// IndexAlreadyExistsError represents an index already exists error with context
type IndexAlreadyExistsError struct {
	IndexName string
}

func (e *IndexAlreadyExistsError) Error() string {
	return fmt.Sprintf("index named '%s' already exists", e.IndexName)
}

func (e *IndexAlreadyExistsError) Is(target error) bool {
	return target == ErrIndexAlreadyExists
}

// NewIndexAlreadyExistsError creates a new IndexAlreadyExistsError
func NewIndexAlreadyExistsError(indexName string) *IndexAlreadyExistsError {
	return &IndexAlreadyExistsError{IndexName: indexName}
}

// DocumentNotFoundError represents a document not found error with context
type DocumentNotFoundError struct {
	DocumentID string
	IndexName  string
}

func (e *DocumentNotFoundError) Error() string {
	if e.IndexName != "" {
		return fmt.Sprintf("document with ID '%s' not found in index '%s'", e.DocumentID, e.IndexName)
	}
	return fmt.Sprintf("document with ID '%s' not found", e.DocumentID)
}

func (e *DocumentNotFoundError) Is(target error) bool {
	return target == ErrDocumentNotFound
}

// NewDocumentNotFoundError creates a new DocumentNotFoundError
func NewDocumentNotFoundError(documentID string, indexName ...string) *DocumentNotFoundError {
	err := &DocumentNotFoundError{DocumentID: documentID}
	if len(indexName) > 0 {
		err.IndexName = indexName[0]
	}
	return err
}

// JobNotFoundError represents a job not found error with context
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job with ID '%s' not found", e.JobID)
}

func (e *JobNotFoundError) Is(target error) bool {
	return target == ErrJobNotFound
}

// NewJobNotFoundError creates a new JobNotFoundError
func NewJobNotFoundError(jobID string) *JobNotFoundError {
	return &JobNotFoundError{JobID: jobID}
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// SameNameError represents an error when trying to rename to the same name
type SameNameError struct {
	Name string
}

func (e *SameNameError) Error() string {
	return fmt.Sprintf("new name '%s' is the same as the current name", e.Name)
}

func (e *SameNameError) Is(target error) bool {
	return target == ErrSameName
}

// NewSameNameError creates a new SameNameError
func NewSameNameError(name string) *SameNameError {
	return &SameNameError{Name: name}
}

// MissingPrimaryKeyError is returned when no primary key field can be
// resolved for a batch and autogeneration is disabled.
type MissingPrimaryKeyError struct{}

func (e *MissingPrimaryKeyError) Error() string {
	return "could not infer a primary key for this batch of documents; a field resembling an id is required, or autogenerate_doc_ids must be enabled"
}

func (e *MissingPrimaryKeyError) Is(target error) bool {
	return target == ErrMissingPrimaryKey
}

// NewMissingPrimaryKeyError creates a new MissingPrimaryKeyError.
func NewMissingPrimaryKeyError() *MissingPrimaryKeyError {
	return &MissingPrimaryKeyError{}
}

// MissingDocumentIDError carries the offending document back to the
// caller so an operator can see exactly which input lacked an id.
type MissingDocumentIDError struct {
	PrimaryKey string
	Document   map[string]interface{}
}

func (e *MissingDocumentIDError) Error() string {
	return fmt.Sprintf("document does not have a '%s' field", e.PrimaryKey)
}

func (e *MissingDocumentIDError) Is(target error) bool {
	return target == ErrMissingDocumentID
}

// NewMissingDocumentIDError creates a new MissingDocumentIDError.
func NewMissingDocumentIDError(primaryKey string, document map[string]interface{}) *MissingDocumentIDError {
	return &MissingDocumentIDError{PrimaryKey: primaryKey, Document: document}
}

// InvalidDocumentIDError represents a primary-key value that could not
// be normalized into a valid external id.
type InvalidDocumentIDError struct {
	Value interface{}
}

func (e *InvalidDocumentIDError) Error() string {
	return fmt.Sprintf("document identifier %#v is invalid; a document identifier must be a number or a string composed only of alphanumeric characters, hyphens (-) and underscores (_)", e.Value)
}

func (e *InvalidDocumentIDError) Is(target error) bool {
	return target == ErrInvalidDocumentID
}

// NewInvalidDocumentIDError creates a new InvalidDocumentIDError.
func NewInvalidDocumentIDError(value interface{}) *InvalidDocumentIDError {
	return &InvalidDocumentIDError{Value: value}
}

// AttributeLimitReachedError is returned by the field registry once its
// 16-bit id space is exhausted.
type AttributeLimitReachedError struct{}

func (e *AttributeLimitReachedError) Error() string {
	return "the field registry has reached its maximum capacity of 65536 fields"
}

func (e *AttributeLimitReachedError) Is(target error) bool {
	return target == ErrAttributeLimitReached
}

// NewAttributeLimitReachedError creates a new AttributeLimitReachedError.
func NewAttributeLimitReachedError() *AttributeLimitReachedError {
	return &AttributeLimitReachedError{}
}

// DocumentLimitReachedError is returned by the id allocator once every
// 32-bit internal id is in use.
type DocumentLimitReachedError struct{}

func (e *DocumentLimitReachedError) Error() string {
	return "the document id allocator has reached its maximum capacity"
}

func (e *DocumentLimitReachedError) Is(target error) bool {
	return target == ErrDocumentLimitReached
}

// NewDocumentLimitReachedError creates a new DocumentLimitReachedError.
func NewDocumentLimitReachedError() *DocumentLimitReachedError {
	return &DocumentLimitReachedError{}
}

// DatabaseMissingEntryError signals that the external id map references
// an internal id that has no corresponding stored record. This is a bug,
// not a user error.
type DatabaseMissingEntryError struct {
	InternalID uint32
}

func (e *DatabaseMissingEntryError) Error() string {
	return fmt.Sprintf("internal invariant violated: no stored record for internal id %d", e.InternalID)
}

func (e *DatabaseMissingEntryError) Is(target error) bool {
	return target == ErrDatabaseMissingEntry
}

// NewDatabaseMissingEntryError creates a new DatabaseMissingEntryError.
func NewDatabaseMissingEntryError(internalID uint32) *DatabaseMissingEntryError {
	return &DatabaseMissingEntryError{InternalID: internalID}
}

// IndexingMergingKeysError signals that the final sorter, which must
// see each internal id at most once, observed a duplicate. This is a
// bug, not a user error: external-id deduplication should have made
// internal ids unique before this point.
type IndexingMergingKeysError struct {
	InternalID uint32
}

func (e *IndexingMergingKeysError) Error() string {
	return fmt.Sprintf("internal invariant violated: internal id %d was produced more than once while merging", e.InternalID)
}

func (e *IndexingMergingKeysError) Is(target error) bool {
	return target == ErrIndexingMergingKeys
}

// NewIndexingMergingKeysError creates a new IndexingMergingKeysError.
func NewIndexingMergingKeysError(internalID uint32) *IndexingMergingKeysError {
	return &IndexingMergingKeysError{InternalID: internalID}
}
