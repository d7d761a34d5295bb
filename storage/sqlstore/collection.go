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


package sqlstore

import (
	"context"
	"maps"
	"slices"

	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CollectionRepository implements storage.CollectionRepository with gorm.
type CollectionRepository struct {
	db *DB
}

var _ storage.CollectionRepository = (*CollectionRepository)(nil)

// NewCollectionRepository creates a new CollectionRepository.
func NewCollectionRepository(db *DB) *CollectionRepository {
	return &CollectionRepository{db: db}
}

// Close releases resources. The connection is closed through DB.
func (r *CollectionRepository) Close() error {
	return nil
}

// GetOrCreateCollection inserts the collection unless the name is taken and
// then reads back whichever row won.
func (r *CollectionRepository) GetOrCreateCollection(ctx context.Context, name string, metadata map[string]string) (*core.Collection, bool, error) {
	if err := core.ValidateCollectionName(name); err != nil {
		return nil, false, err
	}

	entity := &collectionEntity{
		ID:       core.NewID(),
		Name:     name,
		Metadata: datatypes.NewJSONType(maps.Clone(metadata)),
	}
	res := r.db.gorm.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(entity)
	if res.Error != nil {
		return nil, false, translateError(res.Error)
	}
	created := res.RowsAffected == 1

	collection, err := r.GetCollectionByName(ctx, name)
	if err != nil {
		return nil, false, err
	}
	return collection, created, nil
}

// GetCollectionByName looks a collection up by its unique name.
func (r *CollectionRepository) GetCollectionByName(ctx context.Context, name string) (*core.Collection, error) {
	var entity collectionEntity
	if err := r.db.gorm.WithContext(ctx).Where("name = ?", name).First(&entity).Error; err != nil {
		return nil, translateError(err)
	}
	return entity.toCore(), nil
}

// GetCollectionsByNames returns the collections that exist among names.
func (r *CollectionRepository) GetCollectionsByNames(ctx context.Context, names []string) ([]*core.Collection, error) {
	unique := slices.Compact(slices.Sorted(slices.Values(names)))
	if len(unique) == 0 {
		return []*core.Collection{}, nil
	}
	var entities []collectionEntity
	err := r.db.gorm.WithContext(ctx).Where("name IN ?", unique).Order("name").Find(&entities).Error
	if err != nil {
		return nil, translateError(err)
	}
	return collectionsToCore(entities), nil
}

// ListCollections returns every collection ordered by name.
func (r *CollectionRepository) ListCollections(ctx context.Context) ([]*core.Collection, error) {
	var entities []collectionEntity
	if err := r.db.gorm.WithContext(ctx).Order("name").Find(&entities).Error; err != nil {
		return nil, translateError(err)
	}
	return collectionsToCore(entities), nil
}

// UpdateCollectionMetadata replaces the metadata of a collection.
func (r *CollectionRepository) UpdateCollectionMetadata(ctx context.Context, name string, metadata map[string]string) error {
	res := r.db.gorm.WithContext(ctx).Model(&collectionEntity{}).
		Where("name = ?", name).
		Update("metadata", datatypes.NewJSONType(maps.Clone(metadata)))
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteCollection removes a collection and its records in one transaction.
func (r *CollectionRepository) DeleteCollection(ctx context.Context, name string) error {
	return translateError(r.db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entity collectionEntity
		err := tx.Where("name = ?", name).Limit(1).Find(&entity).Error
		if err != nil || entity.ID == "" {
			return err
		}
		if err := tx.Where("collection_id = ?", entity.ID).Delete(&recordEntity{}).Error; err != nil {
			return err
		}
		return tx.Delete(&entity).Error
	}))
}

func collectionsToCore(entities []collectionEntity) []*core.Collection {
	result := make([]*core.Collection, 0, len(entities))
	for i := range entities {
		result = append(result, entities[i].toCore())
	}
	return result
}
