// Package primarykey resolves which field of an ingested batch supplies
// the external document id, and validates or autogenerates that value
// per document.
package primarykey

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/gcbaptista/docingest/internal/errors"
	"github.com/gcbaptista/docingest/internal/fieldmap"
)

// DefaultName is the constant primary-key field name used when none is
// stored or inferable and autogeneration is enabled.
const DefaultName = "id"

// Resolve picks the primary-key field according to §4.C's priority
// order and registers it, returning its field id and name.
//
//   1. storedName, if non-empty, is used outright.
//   2. Otherwise the batch's field names are scanned in ascending
//      local-id order for the first whose lowercased form contains
//      "id".
//   3. Otherwise, if autogenerate is true, the constant name "id" is
//      used.
//   4. Otherwise resolution fails with ErrMissingPrimaryKey.
func Resolve(registry *fieldmap.Registry, storedName string, batchFields fieldmap.BatchFieldMap, autogenerate bool) (uint16, string, error) {
	name := storedName
	if name == "" {
		if inferred, ok := inferFromBatch(batchFields); ok {
			name = inferred
		} else if autogenerate {
			name = DefaultName
		} else {
			return 0, "", errors.NewMissingPrimaryKeyError()
		}
	}

	id, err := registry.Insert(name)
	if err != nil {
		return 0, "", err
	}
	return id, name, nil
}

// inferFromBatch scans batch field names in ascending local-id order
// and returns the first whose lowercased form contains "id". This loose
// substring rule is preserved for compatibility (spec.md §9, open
// question 3): it will happily match "video" or "width".
func inferFromBatch(batchFields fieldmap.BatchFieldMap) (string, bool) {
	localIDs := make([]uint16, 0, len(batchFields))
	for id := range batchFields {
		localIDs = append(localIDs, id)
	}
	sort.Slice(localIDs, func(i, j int) bool { return localIDs[i] < localIDs[j] })
	for _, id := range localIDs {
		name := batchFields[id]
		if strings.Contains(strings.ToLower(name), "id") {
			return name, true
		}
	}
	return "", false
}

// NormalizeExternalID decodes a raw JSON value for the primary-key
// field and normalizes it to the external id string form of §3: a
// trimmed string matching [A-Za-z0-9_-], or a JSON number coerced to
// its decimal string form. Any other shape fails with
// ErrInvalidDocumentID.
func NormalizeExternalID(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if !validExternalID(trimmed) {
			return "", errors.NewInvalidDocumentIDError(v)
		}
		return trimmed, nil
	case float64:
		return formatJSONNumber(v), nil
	default:
		return "", errors.NewInvalidDocumentIDError(v)
	}
}

func validExternalID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

// formatJSONNumber renders a JSON number (decoded as float64 by
// encoding/json) in its decimal string form, preserving integer
// formatting when the value has no fractional part.
func formatJSONNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Autogenerate produces a fresh, cryptographically random external id
// in the canonical lowercase 36-character hyphenated UUID form.
func Autogenerate() string {
	return uuid.New().String()
}

// ResolveDocumentID implements the per-document validation of §4.C.
//
// When the document carries a value under the primary-key field
// (valueFound), it is decoded and normalized to an external id string.
// When it does not, and autogenerate is false, resolution fails with
// MissingDocumentIDError carrying documentView for operator diagnosis.
// When it does not, and autogenerate is true, a fresh id is synthesized
// and returned alongside its JSON-encoded form so the caller can inject
// it back into the document's field list.
func ResolveDocumentID(valueBytes []byte, valueFound bool, primaryKeyName string, autogenerate bool, documentView map[string]interface{}) (externalID string, autogenValue []byte, err error) {
	if valueFound {
		var decoded interface{}
		if err := json.Unmarshal(valueBytes, &decoded); err != nil {
			return "", nil, err
		}
		externalID, err = NormalizeExternalID(decoded)
		if err != nil {
			return "", nil, err
		}
		return externalID, nil, nil
	}

	if !autogenerate {
		return "", nil, errors.NewMissingDocumentIDError(primaryKeyName, documentView)
	}

	externalID = Autogenerate()
	autogenValue, err = json.Marshal(externalID)
	if err != nil {
		return "", nil, err
	}
	return externalID, autogenValue, nil
}
