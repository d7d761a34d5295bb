// Package loader turns files on disk into text fragments for chunking.
//
// FileLoader accepts a single path or a doublestar glob ("docs/**/*.md")
// and picks a langchaingo document loader by file extension:
//
//   - .txt, .md, .markdown: plain text, one fragment per file
//   - .html, .htm: visible text of the body, one fragment per file
//   - .csv: one fragment per row, "column: value" lines
//   - .pdf: one fragment per page
//
// Every fragment records the file path as its Source metadata. Page and row
// numbers are kept in the extension metadata under "page", "total_pages"
// and "row".
package loader
