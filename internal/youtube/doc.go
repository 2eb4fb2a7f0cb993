// Package youtube adapts github.com/kkdai/youtube/v2 to the acquisition
// collaborator interfaces.
//
// A single Client serves three roles:
//   - metadata extractor: title, channel, publish date, duration
//   - transcript source: caption track discovery and timed-text parsing
//   - media fetcher: highest bitrate audio-only stream download
//
// Errors are tagged with a services.Kind so the acquisition machine can
// decide between retry, fallback, and terminal failure.
package youtube
