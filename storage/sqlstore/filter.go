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
	"strings"

	"github.com/poiesic/ragstore/core"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// metadataPath is the JSON path of a metadata key inside the metadata column.
func metadataPath(key string) []string {
	if core.IsTypedKey(key) {
		return []string{key}
	}
	return []string{"extra", key}
}

// applyFilter narrows db to records whose metadata satisfies filter.
// Keys are restricted to [A-Za-z0-9_] by core.ParseMetadataFilter, so the
// sqlite path literal never needs quoting.
func applyFilter(db *gorm.DB, dialect string, filter *core.MetadataFilter) *gorm.DB {
	if filter.IsEmpty() {
		return db
	}
	for _, cond := range filter.Conditions {
		path := metadataPath(cond.Key)
		if cond.Op == core.FilterEquals && len(cond.Values) == 1 {
			db = db.Where(datatypes.JSONQuery("metadata").Equals(cond.Values[0], path...))
			continue
		}
		if len(cond.Values) == 0 {
			// IN () matches nothing.
			db = db.Where("1 = 0")
			continue
		}
		db = db.Where(membershipSQL(dialect, path), membershipArgs(dialect, path, cond.Values)...)
	}
	return db
}

func membershipSQL(dialect string, path []string) string {
	if dialect == dialectPostgres {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(path)), ",")
		return "json_extract_path_text(metadata::json, " + placeholders + ") IN ?"
	}
	return "JSON_EXTRACT(metadata, ?) IN ?"
}

func membershipArgs(dialect string, path []string, values []string) []any {
	if dialect == dialectPostgres {
		args := make([]any, 0, len(path)+1)
		for _, p := range path {
			args = append(args, p)
		}
		return append(args, values)
	}
	return []any{"$." + strings.Join(path, "."), values}
}
