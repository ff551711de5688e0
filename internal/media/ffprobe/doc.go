// Package ffprobe wraps the ffprobe utility for media container inspection.
// The render stage uses it to clamp hook windows to the real clip duration.
package ffprobe
