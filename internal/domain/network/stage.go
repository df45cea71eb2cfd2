package network

// Stage is the last event emitted for a request.
type Stage int

const (
	StageNone Stage = iota
	StageRequestWillBeSent
	StageResponseReceived
	StageRequestFinished
	StageRequestFailed
)

func (s Stage) String() string {
	switch s {
	case StageRequestWillBeSent:
		return "requestWillBeSent"
	case StageResponseReceived:
		return "responseReceived"
	case StageRequestFinished:
		return "requestFinished"
	case StageRequestFailed:
		return "requestFailed"
	default:
		return "none"
	}
}

// Terminal reports whether no stage can follow s.
func (s Stage) Terminal() bool {
	return s == StageRequestFinished || s == StageRequestFailed
}

// transitions lists the stages that may follow each stage, in the order
// they are preferred when several are ready.
var transitions = map[Stage][]Stage{
	StageNone:              {StageRequestWillBeSent},
	StageRequestWillBeSent: {StageResponseReceived, StageRequestFailed},
	StageResponseReceived:  {StageRequestFinished, StageRequestFailed},
}
