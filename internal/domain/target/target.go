package target

import (
	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
)

// Kind distinguishes tabs from the browser singleton
type Kind string

const (
	KindPage    Kind = "page"
	KindBrowser Kind = "browser"
)

// BrowserTargetID is the id of the browser singleton
const BrowserTargetID = "target-browser"

// Target is a snapshot of an automatable unit
type Target struct {
	ID        string
	Kind      Kind
	ContextID string
	OpenerID  string
	URL       string
	Tab       engine.TabID
	Closed    bool
}

// Info converts the target to its wire form
func (t Target) Info() protocol.TargetInfo {
	return protocol.TargetInfo{
		Type:             string(t.Kind),
		TargetID:         t.ID,
		BrowserContextID: t.ContextID,
		URL:              t.URL,
		OpenerID:         t.OpenerID,
	}
}
