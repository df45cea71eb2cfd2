package engine

import (
	"context"
	"encoding/json"
)

// Partition is an opaque handle to an isolated storage partition
type Partition string

// DefaultPartition is the partition used when no context is named
const DefaultPartition Partition = ""

// TabID is the engine's own handle for a tab
type TabID string

// Engine is everything the protocol layer needs from the browser
type Engine interface {
	PartitionStore
	Tabs
	Content
	Network
	Preferences
}

// PartitionStore owns profile partitions
type PartitionStore interface {
	CreatePartition(name string) (Partition, error)
	// RemovePartition deletes the partition and everything it persisted
	RemovePartition(p Partition) error
	ListPartitions() ([]Partition, error)
}

// TabObserver receives tab lifecycle callbacks. TabOpened for a tab
// created by OpenTab is delivered before OpenTab returns.
type TabObserver interface {
	TabOpened(tab TabID, partition Partition, opener TabID)
	TabNavigated(tab TabID, url string)
	TabClosed(tab TabID)
}

// Size is a requested viewport
type Size struct {
	Width             int
	Height            int
	DeviceScaleFactor float64
	IsMobile          bool
	HasTouch          bool
}

// Tabs opens, closes and observes tabs
type Tabs interface {
	OpenTab(ctx context.Context, partition Partition) (TabID, error)
	CloseTab(tab TabID, skipPermitUnload bool) error
	ObserveTabs(obs TabObserver) (cancel func())
	// SetViewportSize pins the tab size; nil restores the default. It
	// returns the resulting dimensions.
	SetViewportSize(tab TabID, size *Size) (width, height int, err error)
	ObserveDialogs(tab TabID, fn func(DialogEvent)) (cancel func(), err error)
}

// DialogType enumerates modal prompts
type DialogType string

const (
	DialogAlert        DialogType = "alert"
	DialogConfirm      DialogType = "confirm"
	DialogPrompt       DialogType = "prompt"
	DialogBeforeUnload DialogType = "beforeunload"
)

// Dialog is an open modal prompt
type Dialog interface {
	Type() DialogType
	Message() string
	DefaultValue() string
	Accept(promptText string) error
	Dismiss() error
}

// DialogEvent reports a dialog opening or closing
type DialogEvent struct {
	Dialog Dialog
	Closed bool
}

// ContentMessage is one envelope on a content session. Calls carry ID
// and Method; replies carry ID and Result or Error; events carry Event.
type ContentMessage struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"methodName,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Event  string          `json:"eventName,omitempty"`
}

// ContentChannel is a tab's message channel to its content process
type ContentChannel interface {
	CreateSession(sessionID string, receive func(ContentMessage)) error
	Post(sessionID string, msg ContentMessage) error
	DisposeSession(sessionID string)
}

// Content hands out content channels
type Content interface {
	ContentChannel(tab TabID) (ContentChannel, error)
}

// Header is a single HTTP header
type Header struct {
	Name  string
	Value string
}

// RequestInfo is captured when a channel's headers are final
type RequestInfo struct {
	URL          string
	Method       string
	Headers      []Header
	PostData     *string
	IsNavigation bool
	Cause        string
}

// SecurityDetails describes the TLS connection of a response
type SecurityDetails struct {
	Protocol    string
	SubjectName string
	Issuer      string
	ValidFrom   float64
	ValidTo     float64
}

// ResponseInfo is captured when a response is examined
type ResponseInfo struct {
	Status     int
	StatusText string
	Headers    []Header
	FromCache  bool
	RemoteIP   string
	RemotePort int
	Security   *SecurityDetails
}

// Channel is one HTTP exchange. Mutating methods are only meaningful
// while the request has not been transmitted.
type Channel interface {
	ID() string
	Tab() TabID
	Request() RequestInfo
	SetRequestHeader(name, value string)
	// Suspend holds transmission until Resume or Cancel. Suspend and
	// Resume nest.
	Suspend()
	Resume()
	Cancel(errorCode string)
}

// ChannelObserver receives low-level channel callbacks. Callbacks for one
// channel are not ordered relative to each other except that OnRedirect
// precedes OnRequest of the new channel.
type ChannelObserver interface {
	OnRedirect(from, to Channel)
	// OnRequest fires once headers are final and before transmission
	OnRequest(ch Channel)
	OnResponse(ch Channel, resp ResponseInfo)
	OnComplete(ch Channel)
	OnFailure(ch Channel, errorCode string)
}

// Network observes traffic and serves recorded bodies
type Network interface {
	ObserveChannels(obs ChannelObserver) (cancel func())
	ResponseBody(tab TabID, channelID string) ([]byte, error)
}

// Cookie is a stored cookie. URL is only used when setting.
type Cookie struct {
	Name     string
	Value    string
	URL      string
	Domain   string
	Path     string
	Expires  float64
	HTTPOnly bool
	Secure   bool
	Session  bool
	SameSite string
}

// Preferences covers browser-wide settings and per-partition state
type Preferences interface {
	Version() (product string, userAgent string)
	SetIgnoreHTTPSErrors(enabled bool)
	GrantPermissions(p Partition, origin string, permissions []string) error
	ResetPermissions(p Partition) error
	SetCookies(p Partition, cookies []Cookie) error
	Cookies(p Partition) ([]Cookie, error)
	ClearCookies(p Partition) error
	// Quit begins browser shutdown; Done is closed once it completes.
	Quit()
	Done() <-chan struct{}
}
