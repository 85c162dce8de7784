package blob

import (
	"context"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"

	"medvault/core/fault"
)

// Transport is the content-addressed store the ciphertext lives in. Put must
// not return an address unless the write was acknowledged; Get must report a
// missing address distinctly from an unreachable store.
type Transport interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, address string) ([]byte, error)
}

// LocalStore is a LevelDB-backed content-addressed store for single-node
// deployments and tests.
type LocalStore struct {
	db *leveldb.DB
}

func NewLocalStore(path string) (*LocalStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LocalStore{db: db}, nil
}

func (s *LocalStore) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	addr := addressOf(data)
	if err := s.db.Put([]byte("blob:"+addr), data, nil); err != nil {
		return "", err
	}
	return addr, nil
}

func (s *LocalStore) Get(ctx context.Context, address string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.db.Get([]byte("blob:"+address), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, fault.Newf(fault.NotFound, "blob.LocalStore.Get", "no blob at %s", address)
		}
		return nil, err
	}
	return data, nil
}

func (s *LocalStore) Close() error {
	return s.db.Close()
}
