// Package reembed rewrites the vectors of existing records with a new or
// updated embedding model.
//
// A collection is walked page by page. Each page is embedded in one provider
// batch (retried with exponential backoff), normalized to unit length, and
// written back with EmbeddingRepository.ReplaceEmbeddings. Documents,
// metadata, custom ids and sequence numbers are left untouched.
package reembed
