// Package ffprobe wraps `ffprobe -of json` for the slow path.
//
// The transcriber uses Inspect to reject downloads that carry no audio stream
// before spending time on extraction and speech-to-text, and to recover the
// media duration when the platform metadata omitted it.
package ffprobe
