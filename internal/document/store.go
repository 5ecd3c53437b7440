package document

import (
	"sync"
)

// Document is a snapshot of one open document's text, version, and
// languageId, keyed by its normalized URI in a Store.
type Document struct {
	URI        string
	LanguageID string
	Version    int32
	Text       string
}

// Store is the URI-keyed map of open documents, guarded by a single mutex
// (spec.md C3). It normalizes every URI it is given so the same file always
// lands under one key regardless of spelling.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewStore returns an empty, ready-to-use Store.
func NewStore() *Store {
	return &Store{docs: make(map[string]*Document)}
}

// Open registers a new document, or replaces one already open at the same
// URI (the host re-sending didOpen for an already-open URI is treated as a
// resync, not an error, matching how a text-document-sync client behaves in
// practice).
func (s *Store) Open(rawURI, languageID string, version int32, text string) (*Document, error) {
	uri, err := NormalizeURI(rawURI)
	if err != nil {
		return nil, err
	}

	doc := &Document{URI: uri, LanguageID: languageID, Version: version, Text: text}

	s.mu.Lock()
	s.docs[uri] = doc
	s.mu.Unlock()

	return doc, nil
}

// Update applies content changes to an already-open document and bumps its
// version. version must be strictly greater than the document's current
// version (spec.md's VersionError / InvalidVersion).
func (s *Store) Update(rawURI string, version int32, changes []ContentChange) (*Document, error) {
	uri, err := NormalizeURI(rawURI)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[uri]
	if !ok {
		return nil, &NotOpenError{URI: uri}
	}
	if version <= doc.Version {
		return nil, &VersionError{URI: uri, Have: doc.Version, Want: version}
	}

	newText, err := applyChanges(doc.Text, changes)
	if err != nil {
		return nil, &InvalidChangeError{URI: uri, Err: err}
	}

	updated := &Document{URI: uri, LanguageID: doc.LanguageID, Version: version, Text: newText}
	s.docs[uri] = updated
	return updated, nil
}

// ApplyEdits applies edits to the document at uri via ApplyEditList and
// bumps its version by exactly one. Used by the workspace-edit engine (C6),
// never called directly by the host.
func (s *Store) ApplyEdits(rawURI string, edits []TextEdit) (*Document, error) {
	uri, err := NormalizeURI(rawURI)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[uri]
	if !ok {
		return nil, &NotOpenError{URI: uri}
	}

	newText, err := ApplyEditList(doc.Text, edits)
	if err != nil {
		return nil, &InvalidChangeError{URI: uri, Err: err}
	}

	updated := &Document{URI: uri, LanguageID: doc.LanguageID, Version: doc.Version + 1, Text: newText}
	s.docs[uri] = updated
	return updated, nil
}

// Rename moves the open document at oldURI to newURI, preserving its text,
// languageId, and version. Returns the relocated document.
func (s *Store) Rename(rawOldURI, rawNewURI string) (*Document, error) {
	oldURI, err := NormalizeURI(rawOldURI)
	if err != nil {
		return nil, err
	}
	newURI, err := NormalizeURI(rawNewURI)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[oldURI]
	if !ok {
		return nil, &NotOpenError{URI: oldURI}
	}

	moved := &Document{URI: newURI, LanguageID: doc.LanguageID, Version: doc.Version, Text: doc.Text}
	delete(s.docs, oldURI)
	s.docs[newURI] = moved
	return moved, nil
}

// Close removes a document from the store. Closing a URI that isn't open is
// a no-op, matching didClose being safe to send defensively.
func (s *Store) Close(rawURI string) error {
	uri, err := NormalizeURI(rawURI)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the open document at uri, or NotOpenError.
func (s *Store) Get(rawURI string) (Document, error) {
	uri, err := NormalizeURI(rawURI)
	if err != nil {
		return Document{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[uri]
	if !ok {
		return Document{}, &NotOpenError{URI: uri}
	}
	return *doc, nil
}

// All returns a snapshot copy of every currently open document.
func (s *Store) All() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, *doc)
	}
	return out
}

// IsOpen reports whether uri (after normalization) has an open document.
func (s *Store) IsOpen(rawURI string) bool {
	uri, err := NormalizeURI(rawURI)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[uri]
	return ok
}
