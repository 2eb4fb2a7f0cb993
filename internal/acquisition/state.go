package acquisition

// State is a node in the acquisition state machine.
type State string

const (
	StateValidating     State = "validating"
	StateFastPath       State = "fast_path"
	StateSlowDownload   State = "slow_path_download"
	StateSlowTranscribe State = "slow_path_transcribe"
	StateNormalizing    State = "normalizing"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
	StateNoSpeech       State = "no_speech"
)

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateNoSpeech:
		return true
	default:
		return false
	}
}

// States lists the non-terminal states in pipeline order.
func States() []State {
	return []State{
		StateValidating,
		StateFastPath,
		StateSlowDownload,
		StateSlowTranscribe,
		StateNormalizing,
	}
}
