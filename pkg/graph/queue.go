package graph

// QueueItem is a commit waiting in a CommitQueue together with walk state.
type QueueItem[T any] struct {
	ID    CommitID
	Value T
}

// CommitQueue implements heap.Interface such that the commit with the greatest level is at
// the root of the heap. Equal levels are ordered by hash to keep walks deterministic.
type CommitQueue[T any] []*QueueItem[T]

func NewCommitQueue[T any]() CommitQueue[T] {
	return make(CommitQueue[T], 0)
}

func (c CommitQueue[T]) Len() int {
	return len(c)
}

func (c CommitQueue[T]) Swap(i, j int) {
	c[i], c[j] = c[j], c[i]
}

func (c *CommitQueue[T]) Push(x interface{}) {
	item := x.(*QueueItem[T])
	*c = append(*c, item)
}

func (c *CommitQueue[T]) Pop() interface{} {
	cc := *c
	n := len(cc) - 1
	item := cc[n]
	cc[n] = nil
	*c = cc[:n]
	return item
}

func (c CommitQueue[T]) Less(i, j int) bool {
	if c[i].ID.Level == c[j].ID.Level {
		return c[i].ID.Hash > c[j].ID.Hash
	}
	return c[i].ID.Level > c[j].ID.Level
}
