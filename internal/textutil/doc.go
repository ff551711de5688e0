// Package textutil provides small text normalization helpers shared across
// the pipeline, chiefly turning caller-supplied identifiers into strings
// that are safe to embed in filesystem paths.
package textutil
