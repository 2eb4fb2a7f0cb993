// Package whisperx is the slow-path speech-to-text engine. It extracts a
// mono 16 kHz WAV with ffmpeg and runs WhisperX through uvx, then reads the
// segment JSON WhisperX writes next to the audio.
//
// Configuration options (model, CUDA, VAD method) are passed via Config.
package whisperx
