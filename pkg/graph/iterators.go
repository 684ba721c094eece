package graph

// CommitEntryIterator streams commit entries. Close may be called before the end to stop early.
type CommitEntryIterator interface {
	Next() bool
	Value() *CommitEntry
	Err() error
	Close()
}

type commitEntrySliceIterator struct {
	entries []*CommitEntry
	idx     int
	value   *CommitEntry
	closed  bool
}

func NewCommitEntrySliceIterator(entries []*CommitEntry) CommitEntryIterator {
	return &commitEntrySliceIterator{entries: entries}
}

func (it *commitEntrySliceIterator) Next() bool {
	if it.closed || it.idx >= len(it.entries) {
		it.value = nil
		return false
	}
	it.value = it.entries[it.idx]
	it.idx++
	return true
}

func (it *commitEntrySliceIterator) Value() *CommitEntry {
	return it.value
}

func (it *commitEntrySliceIterator) Err() error {
	return nil
}

func (it *commitEntrySliceIterator) Close() {
	it.closed = true
	it.value = nil
}

// CollectEntries drains and closes it.
func CollectEntries(it CommitEntryIterator) ([]*CommitEntry, error) {
	defer it.Close()
	var entries []*CommitEntry
	for it.Next() {
		entries = append(entries, it.Value())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// FilterFunc decides whether an entry passes. A non nil error stops the stream.
type FilterFunc func(entry *CommitEntry) error

type checkedIterator struct {
	it    CommitEntryIterator
	check FilterFunc
	value *CommitEntry
	err   error
}

// NewCheckedIterator runs check on every entry of it and stops with the first error returned.
func NewCheckedIterator(it CommitEntryIterator, check FilterFunc) CommitEntryIterator {
	return &checkedIterator{it: it, check: check}
}

func (c *checkedIterator) Next() bool {
	if c.err != nil {
		c.value = nil
		return false
	}
	if !c.it.Next() {
		c.value = nil
		return false
	}
	entry := c.it.Value()
	if err := c.check(entry); err != nil {
		c.err = err
		c.value = nil
		return false
	}
	c.value = entry
	return true
}

func (c *checkedIterator) Value() *CommitEntry {
	return c.value
}

func (c *checkedIterator) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.it.Err()
}

func (c *checkedIterator) Close() {
	c.it.Close()
}
