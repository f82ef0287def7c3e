package badger

// NewMemoryStore creates an in-memory store writer and reader sharing one backend, for testing.
// Caller must close the backend when done.
func NewMemoryStore() (*StoreWriter, *StoreReader, *Backend, error) {
	backend, err := OpenBackend("", ModeInMemory, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	return NewStoreWriter(backend), NewStoreReader(backend), backend, nil
}

// NewMemoryLineage creates an in-memory lineage repository for testing.
// Caller must close the repository when done.
func NewMemoryLineage() (*LineageRepository, error) {
	backend, err := OpenBackend("", ModeInMemory, nil)
	if err != nil {
		return nil, err
	}
	repo, err := NewLineageRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	repo.owned = true
	return repo, nil
}
