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


package main

import (
	"log"
	"os"
	"time"

	"github.com/poiesic/ragstore/ai/openai"
	"github.com/urfave/cli/v2"
)

// newProvider builds the embedding provider. Tests replace it.
var newProvider = openai.NewProvider

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ragstore",
		Usage: "Vector embedding store and chunking engine for retrieval-augmented generation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   "ragstore.yaml",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to .env file with RAGSTORE_* overrides",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (selects the badger backend)",
			},
			&cli.StringFlag{
				Name:  "dsn",
				Usage: "Postgres URL or sqlite file path (selects the sql backend)",
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name",
			},
			&cli.IntFlag{
				Name:  "dimensions",
				Usage: "Embedding vector length",
			},
			&cli.StringFlag{
				Name:  "distance",
				Usage: "Distance strategy (cosine, euclidean, max_inner_product)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "collections",
				Usage:  "List collections",
				Action: collectionsCommand,
			},
			{
				Name:      "drop-collection",
				Usage:     "Delete a collection and every record in it",
				ArgsUsage: "NAME",
				Action:    dropCollectionCommand,
			},
			{
				Name:      "register",
				Usage:     "Register files or globs for ingestion",
				ArgsUsage: "PATH...",
				Action:    registerCommand,
				Flags:     registerFlags(),
			},
			{
				Name:   "files",
				Usage:  "List registered files and their ingestion state",
				Action: filesCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "collection", Usage: "Only list files of this collection"},
				},
			},
			{
				Name:   "ingest",
				Usage:  "Run one ingestion pass",
				Action: ingestCommand,
				Flags:  ingestionFlags(),
			},
			{
				Name:   "run",
				Usage:  "Run the ingestion scheduler until interrupted",
				Action: runCommand,
				Flags: append(ingestionFlags(),
					&cli.DurationFlag{Name: "interval", Usage: "Time between passes (default from config)"},
				),
			},
			{
				Name:      "reingest",
				Usage:     "Delete a file's chunks and queue it again",
				ArgsUsage: "FILE_ID...",
				Action:    reingestCommand,
			},
			{
				Name:      "remove",
				Usage:     "Delete a file's chunks and its registration",
				ArgsUsage: "FILE_ID...",
				Action:    removeCommand,
			},
			{
				Name:      "search",
				Usage:     "Search collections for chunks similar to a query",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "collection", Usage: "Collection to search (repeatable)", Required: true},
					&cli.IntFlag{Name: "top-k", Aliases: []string{"k"}, Usage: "Number of results (default from config)"},
					&cli.Float64Flag{Name: "threshold", Usage: "Apply the relevance filter with this distance threshold"},
					&cli.StringFlag{Name: "filter", Usage: `Metadata filter as JSON, e.g. {"scene":"faq","label":{"in":["a","b"]}}`},
				},
			},
			{
				Name:   "page",
				Usage:  "List the records of a collection page by page",
				Action: pageCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "collection", Usage: "Collection name", Required: true},
					&cli.IntFlag{Name: "page", Usage: "Page number, starting at 1", Value: 1},
					&cli.IntFlag{Name: "page-size", Usage: "Records per page", Value: 20},
					&cli.StringFlag{Name: "status", Usage: "enabled, disabled or all", Value: "enabled"},
					&cli.StringFlag{Name: "file-id", Usage: "Only records produced from this file"},
					&cli.StringFlag{Name: "contains", Usage: "Only records whose document contains this text"},
					&cli.StringSliceFlag{Name: "custom-id", Usage: "Only these custom ids (repeatable)"},
				},
			},
			{
				Name:      "status",
				Usage:     "Enable or disable records",
				ArgsUsage: "enabled|disabled",
				Action:    statusCommand,
				Flags:     selectorFlags(),
			},
			{
				Name:   "delete",
				Usage:  "Delete records",
				Action: deleteCommand,
				Flags:  selectorFlags(),
			},
			{
				Name:   "reembed",
				Usage:  "Reembed records with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "collection",
						Usage: "Only reembed this collection (default: all)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}
}

func registerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "collection", Usage: "Target collection", Required: true},
		&cli.StringFlag{Name: "strategy", Usage: "Chunking strategy: length, sentence or delimiter (default from config)"},
		&cli.IntFlag{Name: "chunk-size", Usage: "Chunk size in characters, -1 derives it from the overlap"},
		&cli.IntFlag{Name: "chunk-overlap", Usage: "Characters shared by neighbouring chunks"},
		&cli.BoolFlag{Name: "split-by-context", Usage: "Sentence strategy: emit a window of neighbouring sentences per sentence"},
		&cli.IntFlag{Name: "window-size", Usage: "Sentences on each side of the window"},
		&cli.StringSliceFlag{Name: "delimiter", Usage: `Delimiter for the delimiter strategy (repeatable, escapes such as "\n" allowed)`},
		&cli.BoolFlag{Name: "merge-delimiters", Usage: "Add the default separators after the custom delimiters"},
		&cli.StringFlag{Name: "name", Usage: "Display name stored with every chunk (default: file base name)"},
		&cli.StringFlag{Name: "scene", Usage: "Scene metadata for every chunk"},
		&cli.StringFlag{Name: "label", Usage: "Label metadata for every chunk"},
		&cli.StringFlag{Name: "answer", Usage: "Answer metadata for every chunk"},
	}
}

func ingestionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "pool-size", Usage: "Concurrent files (default from config)"},
		&cli.IntFlag{Name: "max-retries", Usage: "Attempts per file (default from config)"},
	}
}

func selectorFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "file-id", Usage: "Select records by file id (repeatable)"},
		&cli.StringSliceFlag{Name: "custom-id", Usage: "Select records by custom id (repeatable)"},
	}
}
