package index

import (
	"context"
	"fmt"
)

// multiStore fans a Store's operations out across one underlying store per
// repository URL, so the runner can treat "the index" as a single
// collaborator regardless of how many repositories are configured.
type multiStore struct {
	byRepoURL map[string]Store
}

// NewMultiStore returns a Store that routes each call to the underlying
// store registered for its RepoURL/repoURL argument.
func NewMultiStore(byRepoURL map[string]Store) Store {
	return &multiStore{byRepoURL: byRepoURL}
}

func (m *multiStore) storeFor(repoURL string) (Store, error) {
	s, ok := m.byRepoURL[repoURL]
	if !ok {
		return nil, fmt.Errorf("index: no store configured for repository URL %q", repoURL)
	}
	return s, nil
}

func (m *multiStore) SaveSnapshots(ctx context.Context, repoURL string, snapshots []Snapshot) error {
	s, err := m.storeFor(repoURL)
	if err != nil {
		return err
	}
	return s.SaveSnapshots(ctx, repoURL, snapshots)
}

func (m *multiStore) SaveFiles(ctx context.Context, repoURL, snapshotID string, files []File) error {
	s, err := m.storeFor(repoURL)
	if err != nil {
		return err
	}
	return s.SaveFiles(ctx, repoURL, snapshotID, files)
}

func (m *multiStore) GetSnapshots(ctx context.Context, repoURL string) ([]Snapshot, error) {
	s, err := m.storeFor(repoURL)
	if err != nil {
		return nil, err
	}
	return s.GetSnapshots(ctx, repoURL)
}

func (m *multiStore) GetUnindexedSnapshots(ctx context.Context, repoURL string, limit int) ([]string, error) {
	s, err := m.storeFor(repoURL)
	if err != nil {
		return nil, err
	}
	return s.GetUnindexedSnapshots(ctx, repoURL, limit)
}

func (m *multiStore) GetFiles(ctx context.Context, key FileKey, limit int) ([]FileRecord, error) {
	s, err := m.storeFor(key.RepoURL)
	if err != nil {
		return nil, err
	}
	return s.GetFiles(ctx, key, limit)
}

func (m *multiStore) Close() error {
	var firstErr error
	for _, s := range m.byRepoURL {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
