package memstore

// RowLocks reports how many transactions currently have a lock entry.
func (s *Store) RowLocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.rowLocks)
}
