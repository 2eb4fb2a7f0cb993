// Package acquisition turns a source identifier into a normalized transcript.
//
// Acquisition is an explicit state machine. Each non-terminal state has an
// entry in a transition table naming the external services it touches, the
// step that runs it, and the state to fall through to once its retries are
// exhausted. The fast path asks the transcript source for existing captions;
// when none exist the slow path downloads the media and runs speech-to-text.
// Both paths converge on normalizing, which produces the canonical segment
// list that every transcript view is derived from.
//
// Machine.Step runs exactly one state so a scheduler can suspend an item
// between states; the queue drives it, retrying and falling through per entry.
package acquisition
