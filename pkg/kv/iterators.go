package kv

// SliceIterator iterates over entries already held in memory.
type SliceIterator struct {
	entries []Entry
	idx     int
	entry   *Entry
	closed  bool
}

func NewSliceIterator(entries []Entry) *SliceIterator {
	return &SliceIterator{entries: entries}
}

func (s *SliceIterator) Next() bool {
	if s.closed || s.idx >= len(s.entries) {
		s.entry = nil
		return false
	}
	s.entry = &s.entries[s.idx]
	s.idx++
	return true
}

func (s *SliceIterator) Entry() *Entry {
	return s.entry
}

func (s *SliceIterator) Err() error {
	if s.closed {
		return ErrClosedEntries
	}
	return nil
}

func (s *SliceIterator) Close() {
	s.closed = true
	s.entry = nil
}
