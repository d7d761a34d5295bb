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


package core

import (
	"slices"
	"time"
)

// FileStatus is the ingestion state of a source file.
//
//	None -> Wait -> Vectoring -> Done
//	                          -> Fail -> (retried while RetryCount < max)
type FileStatus string

const (
	FileStatusNone      FileStatus = ""
	FileStatusWait      FileStatus = "wait"
	FileStatusVectoring FileStatus = "vectoring"
	FileStatusDone      FileStatus = "done"
	FileStatusFail      FileStatus = "fail"
)

// EligibleFileStatuses are the states a scheduler may pick a file up from.
var EligibleFileStatuses = []FileStatus{FileStatusNone, FileStatusWait, FileStatusFail}

// IsEligible reports whether a file in this state may be (re)vectorized.
func (s FileStatus) IsEligible() bool {
	return slices.Contains(EligibleFileStatuses, s)
}

// ChunkStrategy names a chunking algorithm.
type ChunkStrategy string

const (
	ChunkByLength    ChunkStrategy = "length"
	ChunkBySentence  ChunkStrategy = "sentence"
	ChunkByDelimiter ChunkStrategy = "delimiter"
)

// AutoChunkSize asks the chunker to derive the chunk size from the input.
const AutoChunkSize = -1

// ChunkingConfig is the per-file chunking configuration.
type ChunkingConfig struct {
	Strategy        ChunkStrategy `json:"strategy,omitempty" yaml:"strategy"`
	ChunkSize       int           `json:"chunk_size,omitempty" yaml:"chunk_size"`
	ChunkOverlap    int           `json:"chunk_overlap,omitempty" yaml:"chunk_overlap"`
	SplitByContext  bool          `json:"split_by_context,omitempty" yaml:"split_by_context"`
	WindowSize      int           `json:"window_size,omitempty" yaml:"window_size"`
	Delimiters      []string      `json:"delimiters,omitempty" yaml:"delimiters"`
	MergeDelimiters bool          `json:"merge_delimiters,omitempty" yaml:"merge_delimiters"`
}

// SourceFile is a document registered for ingestion into a collection.
type SourceFile struct {
	ID          string
	Collection  string // Namespace name
	Path        string // Path or glob handed to the document loader
	DisplayName string
	Status      FileStatus
	RetryCount  int
	VectorIDs   []string // Custom ids produced by the last successful run
	Chunking    ChunkingConfig
	Metadata    ChunkMetadata // Parent metadata copied onto every chunk
	CreatedAt   time.Time
	UpdatedAt   time.Time
	VectoringAt time.Time // When the current Vectoring claim started
}
