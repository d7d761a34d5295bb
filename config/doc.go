// Package config loads ragstore settings from a YAML file, optional .env
// files and RAGSTORE_* environment variables.
//
// Precedence, lowest first: DefaultConfig, the YAML file, .env files, the
// process environment. Command-line flags are applied by the caller on top.
//
//	storage:
//	  backend: sql
//	  dsn: postgres://rag@localhost/rag
//	embedding:
//	  host: http://localhost:11434
//	  model: nomic-embed-text
//	  dimensions: 768
//	search:
//	  distance: cosine
package config
