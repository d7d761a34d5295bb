package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragstore/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := t.TempDir() + "/db"
	backend, err := OpenBackend(tmpDir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	err = backend.View(func(tx *badger.Txn) error { return nil })
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestBackendUpdate(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()

	t.Run("commits", func(t *testing.T) {
		err := backend.Update(ctx, func(tx *badger.Txn) error {
			return tx.Set([]byte("k"), []byte("v"))
		})
		require.NoError(t, err)

		var got []byte
		err = backend.View(func(tx *badger.Txn) error {
			var err error
			got, err = getValue(tx, []byte("k"))
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)
	})

	t.Run("discards on error", func(t *testing.T) {
		err := backend.Update(ctx, func(tx *badger.Txn) error {
			if err := tx.Set([]byte("gone"), []byte("v")); err != nil {
				return err
			}
			return assert.AnError
		})
		assert.Equal(t, assert.AnError, err)

		var got []byte
		err = backend.View(func(tx *badger.Txn) error {
			var err error
			got, err = getValue(tx, []byte("gone"))
			return err
		})
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := backend.Update(cctx, func(tx *badger.Txn) error { return nil })
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestBackendUpdate_ConflictRetry(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	key := []byte("counter")

	// Read-modify-write increments race on the same key; replays on
	// conflict must keep every increment.
	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := backend.Update(ctx, func(tx *badger.Txn) error {
				val, err := getValue(tx, key)
				if err != nil {
					return err
				}
				var n uint64
				if val != nil {
					n = binary.BigEndian.Uint64(val)
				}
				time.Sleep(time.Millisecond)
				return tx.Set(key, encodeUint64(n+1))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var val []byte
	err = backend.View(func(tx *badger.Txn) error {
		var err error
		val, err = getValue(tx, key)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(workers), binary.BigEndian.Uint64(val))
}

func TestScanKeys(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	err = backend.Update(context.Background(), func(tx *badger.Txn) error {
		for _, k := range []string{"col:b", "col:a", "colna:a", "emb:x"} {
			if err := tx.Set([]byte(k), []byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var keys []string
	err = backend.View(func(tx *badger.Txn) error {
		return scanKeys(tx, prefixOf(collectionPrefix), func(key, _ []byte) error {
			keys = append(keys, string(key))
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"col:a", "col:b"}, keys)
}
