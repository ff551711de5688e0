// Package hookfinder asks a language model which moment of a transcript makes
// the strongest clip opening, falling back to a fixed window when no model
// credential is configured.
package hookfinder
