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


package chunking

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/ragstore/core"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkSize applies when a config leaves ChunkSize at zero.
	DefaultChunkSize = 500
	// DefaultChunkOverlap applies when a config leaves ChunkOverlap at zero.
	DefaultChunkOverlap = 50
	// DefaultWindowSize is the number of neighbours per side in window mode.
	DefaultWindowSize = 1
	// DefaultImagePattern matches image placeholders left in text by the
	// document converters, e.g. "IMAGE12".
	DefaultImagePattern = `IMAGE\d+`
)

// DefaultSeparators is the cascade tried by the length strategy, coarsest first.
var DefaultSeparators = []string{"\n\n", "\n", "。", "! ", "? ", ". ", "！", "？", " ", ""}

// Engine splits document fragments into chunks. It is safe for concurrent use.
type Engine struct {
	defaults     core.ChunkingConfig
	imagePattern *regexp.Regexp
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithImagePattern replaces the regular expression used to find image
// references in chunk text. Every match is recorded.
func WithImagePattern(pattern string) Option {
	return func(e *Engine) error {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid image pattern: %w", err)
		}
		e.imagePattern = re
		return nil
	}
}

// WithDefaults sets the values used for zero fields of a per-file config.
func WithDefaults(cfg core.ChunkingConfig) Option {
	return func(e *Engine) error {
		if err := core.ValidateChunkingConfig(cfg); err != nil {
			return err
		}
		e.defaults = cfg
		return nil
	}
}

// NewEngine creates a chunking engine.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		defaults: core.ChunkingConfig{
			Strategy:     core.ChunkByLength,
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
			WindowSize:   DefaultWindowSize,
		},
		imagePattern: regexp.MustCompile(DefaultImagePattern),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "chunking-engine")
	return e, nil
}

// Split chunks fragments according to cfg. displayName, when set, is
// recorded as FileName on every chunk. Empty and whitespace-only pieces are
// dropped, so the result may be shorter than the fragment list.
func (e *Engine) Split(fragments []core.Fragment, cfg core.ChunkingConfig, displayName string) ([]core.Chunk, error) {
	if err := core.ValidateChunkingConfig(cfg); err != nil {
		return nil, err
	}
	cfg = e.resolve(cfg, fragments)
	// Overlap is only comparable to the size once defaults are filled in.
	if err := core.ValidateChunkingConfig(cfg); err != nil {
		return nil, err
	}

	splitter, err := e.splitterFor(cfg)
	if err != nil {
		return nil, err
	}

	var chunks []core.Chunk
	for _, fragment := range fragments {
		pieces, err := splitter.SplitText(fragment.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to split fragment: %w", err)
		}
		for _, piece := range pieces {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			chunks = append(chunks, core.Chunk{
				Text:     piece,
				Metadata: e.chunkMetadata(fragment.Metadata, piece, displayName),
			})
		}
	}

	e.logger.Debug("split fragments",
		"fragments", len(fragments),
		"chunks", len(chunks),
		"strategy", cfg.Strategy,
		"chunk_size", cfg.ChunkSize,
		"chunk_overlap", cfg.ChunkOverlap)
	return chunks, nil
}

// resolve fills zero fields from the engine defaults and expands the
// automatic chunk size.
func (e *Engine) resolve(cfg core.ChunkingConfig, fragments []core.Fragment) core.ChunkingConfig {
	if cfg.Strategy == "" {
		cfg.Strategy = e.defaults.Strategy
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = e.defaults.WindowSize
	}

	if cfg.ChunkSize == core.AutoChunkSize {
		total := 0
		for _, f := range fragments {
			total += utf8.RuneCountInString(f.Text)
		}
		cfg.ChunkSize = max(total/cfg.ChunkOverlap, 1)
		cfg.ChunkOverlap = 0
		return cfg
	}

	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = e.defaults.ChunkSize
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = e.defaults.ChunkOverlap
		if cfg.ChunkOverlap >= cfg.ChunkSize {
			cfg.ChunkOverlap = cfg.ChunkSize / 10
		}
	}
	return cfg
}

// splitter is the subset of langchaingo's TextSplitter the engine needs.
type splitter interface {
	SplitText(text string) ([]string, error)
}

var _ splitter = textsplitter.RecursiveCharacter{}

func (e *Engine) splitterFor(cfg core.ChunkingConfig) (splitter, error) {
	switch cfg.Strategy {
	case core.ChunkByLength:
		return newLengthSplitter(cfg, DefaultSeparators), nil
	case core.ChunkBySentence:
		if cfg.SplitByContext {
			return newWindowSplitter(cfg), nil
		}
		return newSentenceSplitter(cfg), nil
	case core.ChunkByDelimiter:
		separators, err := delimiterSeparators(cfg.Delimiters, cfg.MergeDelimiters)
		if err != nil {
			return nil, err
		}
		return newLengthSplitter(cfg, separators), nil
	}
	return nil, fmt.Errorf("%w: unknown strategy %q", core.ErrInvalidChunkConfig, cfg.Strategy)
}

func (e *Engine) chunkMetadata(parent core.ChunkMetadata, text, displayName string) core.ChunkMetadata {
	meta := parent.Clone()
	if displayName != "" {
		meta.FileName = displayName
	}
	meta.Images = e.findImages(text)
	return meta
}

func (e *Engine) findImages(text string) []string {
	matches := e.imagePattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	images := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		images = append(images, m)
	}
	return images
}
