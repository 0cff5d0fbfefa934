package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

// ErrStoreClosed is returned by Append after Close.
var ErrStoreClosed = errors.New("record store closed")

// RecordStore keeps appended records in order.
type RecordStore struct {
	mu      sync.Mutex
	records []harvest.PaperRecord
	closed  bool
	// FailWith, when set, is returned by every Append.
	FailWith error
}

// NewRecordStore creates an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{}
}

// Append stores a record.
func (s *RecordStore) Append(_ context.Context, record harvest.PaperRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if s.FailWith != nil {
		return s.FailWith
	}
	s.records = append(s.records, record)
	return nil
}

// Close marks the store closed.
func (s *RecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Records returns a snapshot of everything appended so far.
func (s *RecordStore) Records() []harvest.PaperRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]harvest.PaperRecord(nil), s.records...)
}
