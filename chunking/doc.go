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


// Package chunking splits loaded document text into chunks ready for embedding.
//
// The Engine applies one of four strategies chosen by core.ChunkingConfig:
//
//   - length (default): recursive splitting over paragraph, line, sentence
//     punctuation and whitespace separators until pieces fit ChunkSize
//   - sentence: the same splitter restricted to sentence boundaries, so
//     chunks never end in the middle of a sentence unless one sentence alone
//     exceeds ChunkSize
//   - sentence window (sentence + SplitByContext): one chunk per sentence,
//     widened with WindowSize neighbouring sentences on each side
//   - delimiter: user supplied separators, optionally merged with the
//     built-in cascade
//
// A ChunkSize of core.AutoChunkSize derives the size from the input as
// total length divided by ChunkOverlap; the overlap is then not applied.
//
// Every chunk carries a copy of its fragment's metadata plus the owning
// file's display name and the image references found in its text.
//
// Lengths are counted in runes, never bytes.
package chunking
