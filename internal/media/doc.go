// Package media wraps the external command-line tools the pipeline shells out
// to: yt-dlp for source fetching and ffmpeg for transcoding, audio extraction,
// thumbnails, and segment rendering.
package media
