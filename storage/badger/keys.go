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
	"encoding/binary"
	"fmt"
	"time"
)

// Key prefixes for different data types
const (
	collectionPrefix       = "col"
	collectionNamePrefix   = "colna"
	recordPrefix           = "emb"
	recordCollectionPrefix = "embco"
	recordFilePrefix       = "embfi"
	fileSequencePrefix     = "fseq"
	sourceFilePrefix       = "srcf"
)

// makeCollectionKey generates a key for a collection by ID.
func makeCollectionKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", collectionPrefix, id))
}

// makeCollectionNameKey generates the unique name index key.
func makeCollectionNameKey(name string) []byte {
	return []byte(fmt.Sprintf("%s:%s", collectionNamePrefix, name))
}

// makeRecordKey generates a key for an embedding record by custom ID.
func makeRecordKey(customID string) []byte {
	return []byte(fmt.Sprintf("%s:%s", recordPrefix, customID))
}

// makeRecordCollectionKey generates a composite key for the per-collection
// creation order index.
// Format: prefix:collectionID:timestamp:sequence:customID
func makeRecordCollectionKey(collectionID string, createdAt time.Time, sequence int64, customID string) []byte {
	prefix := makePartialRecordCollectionKey(collectionID)
	buf := make([]byte, len(prefix)+16+len(customID))
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(sequence))
	offset += 8
	copy(buf[offset:], customID)
	return buf
}

// makePartialRecordCollectionKey generates the prefix of a collection's records.
// Format: prefix:collectionID:
func makePartialRecordCollectionKey(collectionID string) []byte {
	return []byte(recordCollectionPrefix + ":" + collectionID + ":")
}

// fileScope is the owner of a record's sequence numbers: the file id, or the
// collection for ad-hoc chunks.
func fileScope(collectionID, fileID string) string {
	if fileID == "" {
		return "@" + collectionID
	}
	return fileID
}

// makeRecordFileKey generates a composite key for the per-file index.
// Format: prefix:scope:customID
func makeRecordFileKey(scope, customID string) []byte {
	return append(makePartialRecordFileKey(scope), customID...)
}

// makePartialRecordFileKey generates the prefix of a file's records.
func makePartialRecordFileKey(scope string) []byte {
	return []byte(recordFilePrefix + ":" + scope + ":")
}

// makeFileSequenceKey generates the key that serializes sequence assignment
// for one scope.
func makeFileSequenceKey(scope string) []byte {
	return []byte(fmt.Sprintf("%s:%s", fileSequencePrefix, scope))
}

// makeSourceFileKey generates a key for a source file by ID.
func makeSourceFileKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", sourceFilePrefix, id))
}

// prefixOf returns the iteration prefix for a key family.
func prefixOf(family string) []byte {
	return []byte(family + ":")
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
