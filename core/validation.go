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
	"fmt"
	"strings"
)

// ValidateCollectionName rejects blank namespace names.
func ValidateCollectionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyCollectionName
	}
	return nil
}

// ValidateDimensions checks every vector against the configured dimension.
//
// Validation rules:
//   - dim must be positive
//   - every vector must have exactly dim components
func ValidateDimensions(dim int, vectors ...[]float32) error {
	if dim <= 0 {
		return fmt.Errorf("%w: configured dimension %d", ErrDimensionMismatch, dim)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d components, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}

// ValidateStatus accepts enabled and disabled only.
func ValidateStatus(s Status) error {
	if s != StatusEnabled && s != StatusDisabled {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, string(s))
	}
	return nil
}

// ValidateSelector requires exactly one non-empty id list.
func ValidateSelector(sel Selector) error {
	hasFiles := len(sel.FileIDs) > 0
	hasCustom := len(sel.CustomIDs) > 0
	if hasFiles == hasCustom {
		return ErrInvalidSelector
	}
	return nil
}

// ValidatePage checks page coordinates.
func ValidatePage(pageNumber, pageSize int) error {
	if pageNumber < 1 || pageSize < 1 {
		return fmt.Errorf("%w: page %d size %d", ErrInvalidPage, pageNumber, pageSize)
	}
	return nil
}

// NormalizePageStatus maps the empty status to enabled and validates the rest.
func NormalizePageStatus(s Status) (Status, error) {
	switch s {
	case "":
		return StatusEnabled, nil
	case StatusEnabled, StatusDisabled, StatusAll:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, string(s))
}

// ValidateChunkingConfig checks values the chunker cannot work around.
func ValidateChunkingConfig(cfg ChunkingConfig) error {
	switch cfg.Strategy {
	case "", ChunkByLength, ChunkBySentence:
	case ChunkByDelimiter:
		if len(cfg.Delimiters) == 0 && !cfg.MergeDelimiters {
			return fmt.Errorf("%w: delimiter strategy without delimiters", ErrInvalidChunkConfig)
		}
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidChunkConfig, cfg.Strategy)
	}
	if cfg.ChunkSize == AutoChunkSize && cfg.ChunkOverlap <= 0 {
		return fmt.Errorf("%w: automatic chunk size requires a positive overlap", ErrInvalidChunkConfig)
	}
	if cfg.ChunkSize < AutoChunkSize {
		return fmt.Errorf("%w: chunk size %d", ErrInvalidChunkConfig, cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.WindowSize < 0 {
		return fmt.Errorf("%w: negative overlap or window", ErrInvalidChunkConfig)
	}
	if cfg.ChunkSize > 0 && cfg.ChunkOverlap >= cfg.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidChunkConfig, cfg.ChunkOverlap, cfg.ChunkSize)
	}
	return nil
}
