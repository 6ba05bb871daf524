package store

// BatchedStore buffers finished units so that a parallel indexing run can
// commit them together. It is not safe for concurrent use; the writer
// goroutine owns it.
type BatchedStore struct {
	store *Store
	Units []*UnitCommit
	limit int
}

// NewBatchedStore returns a batch that flushes itself every limit units.
// A limit of zero or less never flushes automatically.
func NewBatchedStore(s *Store, limit int) *BatchedStore {
	return &BatchedStore{store: s, limit: limit}
}

// Add queues a unit. When the batch reaches its limit it is committed and
// the committed unit IDs are returned.
func (b *BatchedStore) Add(u *UnitCommit) ([]int64, error) {
	b.Units = append(b.Units, u)
	if b.limit > 0 && len(b.Units) >= b.limit {
		return b.Flush()
	}
	return nil, nil
}

// Len reports the number of queued units.
func (b *BatchedStore) Len() int { return len(b.Units) }

// Flush commits every queued unit. The batch is emptied even on error so a
// failed commit is not retried with the same contents.
func (b *BatchedStore) Flush() ([]int64, error) {
	if len(b.Units) == 0 {
		return nil, nil
	}
	ids, err := b.store.CommitBatch(b)
	b.Units = b.Units[:0]
	return ids, err
}
