// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/storage"
)

// CollectionRepository implements storage.CollectionRepository for BadgerDB.
type CollectionRepository struct {
	backend *Backend
}

var _ storage.CollectionRepository = (*CollectionRepository)(nil)

// NewCollectionRepository creates a new CollectionRepository.
func NewCollectionRepository(backend *Backend) (*CollectionRepository, error) {
	return &CollectionRepository{
		backend: backend,
	}, nil
}

// Close releases resources. CollectionRepository has no resources to release.
func (r *CollectionRepository) Close() error {
	return nil
}

// GetOrCreateCollection finds or creates a collection by name.
func (r *CollectionRepository) GetOrCreateCollection(ctx context.Context, name string, metadata map[string]string) (*core.Collection, bool, error) {
	if err := core.ValidateCollectionName(name); err != nil {
		return nil, false, err
	}

	// Try to find existing collection
	collection, err := r.GetCollectionByName(ctx, name)
	if err == nil {
		return collection, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}

	newCollection := &core.Collection{
		ID:        core.NewID(),
		Name:      name,
		Metadata:  maps.Clone(metadata),
		CreatedAt: time.Now().UTC(),
	}

	// The name index read makes two racing creators conflict on commit.
	err = r.backend.Update(ctx, func(tx *badger.Txn) error {
		nameKey := makeCollectionNameKey(name)
		existing, err := getValue(tx, nameKey)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}
		return writeCollection(tx, newCollection)
	})
	if err != nil {
		// If add failed, try to find it again (someone else may have created it)
		collection, findErr := r.GetCollectionByName(ctx, name)
		if findErr == nil {
			return collection, false, nil
		}
		return nil, false, err
	}

	return newCollection, true, nil
}

// GetCollectionByName looks a collection up through the name index.
func (r *CollectionRepository) GetCollectionByName(ctx context.Context, name string) (*core.Collection, error) {
	var result *core.Collection
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		result, err = readCollectionByName(tx, name)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return result, err
}

// GetCollectionsByNames returns the collections that exist among names.
func (r *CollectionRepository) GetCollectionsByNames(ctx context.Context, names []string) ([]*core.Collection, error) {
	unique := slices.Compact(slices.Sorted(slices.Values(names)))
	result := make([]*core.Collection, 0, len(unique))
	err := r.backend.View(func(tx *badger.Txn) error {
		for _, name := range unique {
			collection, err := readCollectionByName(tx, name)
			if err != nil {
				return err
			}
			if collection != nil {
				result = append(result, collection)
			}
		}
		return nil
	})
	return result, err
}

// ListCollections returns every collection ordered by name.
func (r *CollectionRepository) ListCollections(ctx context.Context) ([]*core.Collection, error) {
	var result []*core.Collection
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanKeys(tx, prefixOf(collectionPrefix), func(_, val []byte) error {
			collection, err := storage.UnmarshalCollection(val)
			if err != nil {
				return err
			}
			result = append(result, collection)
			return nil
		})
	})
	slices.SortFunc(result, func(a, b *core.Collection) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, err
}

// UpdateCollectionMetadata replaces the metadata of a collection.
func (r *CollectionRepository) UpdateCollectionMetadata(ctx context.Context, name string, metadata map[string]string) error {
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		collection, err := readCollectionByName(tx, name)
		if err != nil {
			return err
		}
		if collection == nil {
			return storage.ErrNotFound
		}
		collection.Metadata = maps.Clone(metadata)
		return writeCollection(tx, collection)
	})
}

// DeleteCollection removes a collection and cascades to its records.
// Records go first so a crash never leaves records without an owner entry.
// The final transaction re-scans the collection so records inserted during
// the bulk delete go with the owner keys. Inserts read the collection key, so
// any that commit later conflict and fail with storage.ErrNotFound; the sweep
// after the commit catches those that landed inside the final transaction.
func (r *CollectionRepository) DeleteCollection(ctx context.Context, name string) error {
	collection, err := r.GetCollectionByName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := r.deleteCollectionRecords(ctx, collection.ID); err != nil {
		return err
	}

	err = r.backend.Update(ctx, func(tx *badger.Txn) error {
		customIDs, err := collectionRecordIDs(tx, collection.ID)
		if err != nil {
			return err
		}
		for _, id := range customIDs {
			record, err := readRecord(tx, id)
			if err != nil {
				return err
			}
			if record == nil {
				continue
			}
			if err := deleteRecord(tx, record); err != nil {
				return err
			}
		}
		if err := tx.Delete(makeCollectionNameKey(collection.Name)); err != nil {
			return err
		}
		return tx.Delete(makeCollectionKey(collection.ID))
	})
	if err != nil {
		return err
	}
	return r.deleteCollectionRecords(ctx, collection.ID)
}

func (r *CollectionRepository) deleteCollectionRecords(ctx context.Context, collectionID string) error {
	var customIDs []string
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		customIDs, err = collectionRecordIDs(tx, collectionID)
		return err
	})
	if err != nil {
		return err
	}
	_, err = deleteRecords(ctx, r.backend, customIDs)
	return err
}

// collectionRecordIDs lists the custom ids indexed under a collection.
func collectionRecordIDs(tx *badger.Txn, collectionID string) ([]string, error) {
	var customIDs []string
	err := scanKeys(tx, makePartialRecordCollectionKey(collectionID), func(_, val []byte) error {
		customIDs = append(customIDs, string(val))
		return nil
	})
	return customIDs, err
}

func writeCollection(tx *badger.Txn, collection *core.Collection) error {
	value, err := storage.MarshalCollection(collection)
	if err != nil {
		return err
	}
	if err := tx.Set(makeCollectionKey(collection.ID), value); err != nil {
		return err
	}
	return tx.Set(makeCollectionNameKey(collection.Name), []byte(collection.ID))
}

// readCollection returns nil, nil when the collection doesn't exist.
func readCollection(tx *badger.Txn, id string) (*core.Collection, error) {
	value, err := getValue(tx, makeCollectionKey(id))
	if err != nil || value == nil {
		return nil, err
	}
	return storage.UnmarshalCollection(value)
}

func readCollectionByName(tx *badger.Txn, name string) (*core.Collection, error) {
	id, err := getValue(tx, makeCollectionNameKey(name))
	if err != nil || id == nil {
		return nil, err
	}
	return readCollection(tx, string(id))
}
