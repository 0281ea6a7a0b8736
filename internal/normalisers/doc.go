// Package normalisers turns uploads into plain text before chunking.
//
// One package per format: plaintext (also CSV and TSV), markdown, html, eml
// and ics. The Registry maps a MIME type to the highest-priority normaliser
// that claims it; the ingestion service falls back to raw UTF-8 text when no
// normaliser matches.
package normalisers
