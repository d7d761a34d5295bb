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


package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/poiesic/ragstore/core"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// DocumentLoader reads the documents addressed by a path or glob.
type DocumentLoader interface {
	Load(ctx context.Context, pathOrGlob string) ([]core.Fragment, error)
}

// FileLoader loads documents from the local filesystem.
type FileLoader struct {
	csvColumns  []string
	pdfPassword string
	logger      *slog.Logger
}

var _ DocumentLoader = (*FileLoader)(nil)

// Option configures a FileLoader.
type Option func(*FileLoader) error

// WithLogger sets the logger for the loader.
func WithLogger(logger *slog.Logger) Option {
	return func(l *FileLoader) error {
		l.logger = logger
		return nil
	}
}

// WithCSVColumns restricts CSV fragments to the named columns.
func WithCSVColumns(columns ...string) Option {
	return func(l *FileLoader) error {
		l.csvColumns = columns
		return nil
	}
}

// WithPDFPassword sets the password used to open encrypted PDFs.
func WithPDFPassword(password string) Option {
	return func(l *FileLoader) error {
		l.pdfPassword = password
		return nil
	}
}

// NewFileLoader creates a loader for local files.
func NewFileLoader(opts ...Option) (*FileLoader, error) {
	l := &FileLoader{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	l.logger = l.logger.With("component", "file-loader")
	return l, nil
}

// SupportedExtension reports whether files with this extension can be loaded.
func SupportedExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".txt", ".md", ".markdown", ".html", ".htm", ".csv", ".pdf":
		return true
	}
	return false
}

// Load reads every file matched by pathOrGlob in lexical order.
func (l *FileLoader) Load(ctx context.Context, pathOrGlob string) ([]core.Fragment, error) {
	paths, err := expand(pathOrGlob)
	if err != nil {
		return nil, err
	}

	var fragments []core.Fragment
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs, err := l.loadFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		for _, doc := range docs {
			fragments = append(fragments, toFragment(path, doc))
		}
	}

	l.logger.Debug("loaded documents", "pattern", pathOrGlob, "files", len(paths), "fragments", len(fragments))
	return fragments, nil
}

func expand(pathOrGlob string) ([]string, error) {
	if !strings.ContainsAny(pathOrGlob, "*?[{") {
		info, err := os.Stat(pathOrGlob)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrNoFiles, pathOrGlob)
			}
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", ErrNoFiles, pathOrGlob)
		}
		return []string{pathOrGlob}, nil
	}

	if !doublestar.ValidatePathPattern(filepath.ToSlash(pathOrGlob)) {
		return nil, fmt.Errorf("invalid glob pattern %q", pathOrGlob)
	}
	matches, err := doublestar.FilepathGlob(pathOrGlob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, pathOrGlob)
	}
	slices.Sort(matches)
	return matches, nil
}

func (l *FileLoader) loadFile(ctx context.Context, path string) ([]schema.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !SupportedExtension(ext) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext {
	case ".html", ".htm":
		return documentloaders.NewHTML(f).Load(ctx)
	case ".csv":
		return documentloaders.NewCSV(f, l.csvColumns...).Load(ctx)
	case ".pdf":
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		var opts []documentloaders.PDFOptions
		if l.pdfPassword != "" {
			opts = append(opts, documentloaders.WithPassword(l.pdfPassword))
		}
		return documentloaders.NewPDF(f, info.Size(), opts...).Load(ctx)
	default:
		return documentloaders.NewText(f).Load(ctx)
	}
}

func toFragment(path string, doc schema.Document) core.Fragment {
	meta := core.ChunkMetadata{Source: path}
	for _, key := range []string{"page", "total_pages", "row"} {
		if v, ok := doc.Metadata[key]; ok {
			meta.Set(key, fmt.Sprint(v))
		}
	}
	return core.Fragment{Text: doc.PageContent, Metadata: meta}
}
