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


package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragstore/core"
	"github.com/poiesic/ragstore/loader"
)

// ChunkWriter embeds and stores chunks. *search.Engine implements it.
type ChunkWriter interface {
	// InsertChunks embeds chunks and stores them as one atomic unit under fileID.
	InsertChunks(ctx context.Context, collectionName, fileID string, chunks []core.Chunk) ([]string, error)

	// DeleteByFileIDs removes every record produced from the given files.
	DeleteByFileIDs(ctx context.Context, fileIDs []string) (int64, error)
}

// Chunker splits loaded fragments into chunks. *chunking.Engine implements it.
type Chunker interface {
	Split(fragments []core.Fragment, cfg core.ChunkingConfig, displayName string) ([]core.Chunk, error)
}

// processor is an internal interface for vectorizing one claimed file.
type processor interface {
	// process loads, chunks, embeds and stores the file, returning the
	// custom ids of the stored chunks in order.
	process(ctx context.Context, file *core.SourceFile) ([]string, error)
}

// fileProcessor is the default processor.
type fileProcessor struct {
	loader  loader.DocumentLoader
	chunker Chunker
	writer  ChunkWriter
	logger  *slog.Logger
}

var _ processor = (*fileProcessor)(nil)

func newFileProcessor(l loader.DocumentLoader, chunker Chunker, writer ChunkWriter, logger *slog.Logger) *fileProcessor {
	return &fileProcessor{
		loader:  l,
		chunker: chunker,
		writer:  writer,
		logger:  logger.With("component", "file-processor"),
	}
}

func (p *fileProcessor) process(ctx context.Context, file *core.SourceFile) ([]string, error) {
	fragments, err := p.loader.Load(ctx, file.Path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", file.Path, err)
	}
	for i := range fragments {
		fragments[i].Metadata = withParent(file.Metadata, fragments[i].Metadata)
	}

	chunks, err := p.chunker.Split(fragments, file.Chunking, file.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("chunking %s: %w", file.Path, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%s: %w", file.Path, ErrNoChunks)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Records left over from an interrupted earlier run would otherwise
	// duplicate the new ones.
	if n, err := p.writer.DeleteByFileIDs(ctx, []string{file.ID}); err != nil {
		return nil, err
	} else if n > 0 {
		p.logger.Warn("removed leftover records", "file_id", file.ID, "count", n)
	}

	ids, err := p.writer.InsertChunks(ctx, file.Collection, file.ID, chunks)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("vectorized file", "file_id", file.ID, "fragments", len(fragments), "chunks", len(ids))
	return ids, nil
}

// withParent layers the file's parent metadata over what the loader found.
// Parent values win. Loader values fill the gaps.
func withParent(parent, loaded core.ChunkMetadata) core.ChunkMetadata {
	merged := parent.Clone()
	if merged.Source == "" {
		merged.Source = loaded.Source
	}
	for k, v := range loaded.Extra {
		if _, ok := merged.Lookup(k); !ok {
			merged.Set(k, v)
		}
	}
	return merged
}
