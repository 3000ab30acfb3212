package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/solatis/smartfolder/internal/types"
)

// Document is the engine's view of a document: an identifier plus field
// access by name. How documents are fetched or indexed is up to the caller.
type Document interface {
	ID() types.DocumentID
	// Field returns the current value of a field. found=false when absent.
	Field(name string) (value any, found bool, err error)
}

// PathDocument is implemented by documents that accept pre-parsed paths,
// letting the evaluator skip re-parsing field names per document.
type PathDocument interface {
	Document
	FieldPath(path []types.PathSegment) (value any, found bool, err error)
}

// Checksummer is implemented by documents that can summarize their content.
// Fingerprints include the checksum so edited documents miss the cache.
type Checksummer interface {
	Checksum() string
}

// JSONDocument holds decoded JSON metadata for one document.
type JSONDocument struct {
	id       types.DocumentID
	data     any
	checksum string
}

// NewJSONDocument decodes raw metadata. The checksum covers the raw bytes.
func NewJSONDocument(id types.DocumentID, raw json.RawMessage) (*JSONDocument, error) {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	sum := sha256.Sum256(raw)
	return &JSONDocument{id: id, data: data, checksum: hex.EncodeToString(sum[:])}, nil
}

// NewMapDocument wraps already decoded metadata. Fields that cannot be
// encoded as JSON leave the checksum empty, so only the id is fingerprinted.
func NewMapDocument(id types.DocumentID, fields map[string]any) *JSONDocument {
	doc := &JSONDocument{id: id, data: fields}
	if raw, err := json.Marshal(fields); err == nil {
		sum := sha256.Sum256(raw)
		doc.checksum = hex.EncodeToString(sum[:])
	}
	return doc
}

func (d *JSONDocument) ID() types.DocumentID { return d.id }

func (d *JSONDocument) Checksum() string { return d.checksum }

func (d *JSONDocument) Field(name string) (any, bool, error) {
	path, err := ParseFieldPath(name)
	if err != nil {
		return nil, false, err
	}
	return d.FieldPath(path)
}

func (d *JSONDocument) FieldPath(path []types.PathSegment) (any, bool, error) {
	v, err := Resolve(path, d.data)
	if errors.Is(err, types.ErrFieldNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Fingerprint identifies a document set plus the query shaping its result.
// Order of docs does not matter.
func Fingerprint(docs []Document, q types.Query) string {
	entries := make([]string, len(docs))
	for i, doc := range docs {
		entry := string(doc.ID())
		if c, ok := doc.(Checksummer); ok {
			entry += ":" + c.Checksum()
		}
		entries[i] = entry
	}
	sort.Strings(entries)

	h := sha256.New()
	fmt.Fprintf(h, "limit=%d;offset=%d;sort=%s;order=%s\n", q.Limit, q.Offset, q.SortBy, q.SortOrder)
	for _, entry := range entries {
		h.Write([]byte(entry))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
