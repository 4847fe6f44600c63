// Package configs provides embedded configuration templates for marpsearch.
//
// Templates are embedded at build time with //go:embed, so they ship in
// every distribution (source builds and binary releases alike). The
// example config is written by `marpsearch config init` and documents
// every setting alongside its default.
//
// Configuration precedence (see internal/config.Load):
//
//  1. Built-in defaults
//  2. marpsearch.yaml in the data directory
//  3. MARPSEARCH_* environment variables
package configs

import _ "embed"

// ConfigTemplate is the annotated example configuration file.
//
//go:embed marpsearch.example.yaml
var ConfigTemplate string
