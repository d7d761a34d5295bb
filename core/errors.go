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

import "errors"

// Domain validation errors
var (
	// ErrDimensionMismatch indicates a vector whose length differs from the
	// configured embedding dimension. It is never retried.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidSelector indicates a status change without exactly one target set.
	ErrInvalidSelector = errors.New("exactly one of file ids or custom ids must be given")

	// ErrInvalidFilter indicates a metadata filter that cannot be evaluated.
	ErrInvalidFilter = errors.New("invalid metadata filter")

	// ErrInvalidStatus indicates a status value outside enabled/disabled.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrUnknownDistance indicates an unsupported distance strategy.
	ErrUnknownDistance = errors.New("unknown distance strategy")

	// ErrEmptyCollectionName indicates a collection without a name.
	ErrEmptyCollectionName = errors.New("collection name cannot be empty")

	// ErrInvalidChunkConfig indicates a chunking configuration that cannot be applied.
	ErrInvalidChunkConfig = errors.New("invalid chunking configuration")

	// ErrInvalidPage indicates a page number or size below one.
	ErrInvalidPage = errors.New("page number and size must be positive")
)
