// Package transcriber calls an external speech-to-text service to turn a
// clip's audio track into a transcript for the caption stage.
package transcriber
