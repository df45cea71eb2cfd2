package protocol

import (
	"strings"

	s "github.com/GriffinCanCode/AgentOS/remote/internal/protocol/schema"
)

// Domain names a group of related verbs and events
type Domain string

const (
	DomainBrowser       Domain = "Browser"
	DomainTarget        Domain = "Target"
	DomainPage          Domain = "Page"
	DomainNetwork       Domain = "Network"
	DomainRuntime       Domain = "Runtime"
	DomainAccessibility Domain = "Accessibility"
)

// Scope tells the dispatcher where a domain's handler lives
type Scope int

const (
	// ScopeBrowser domains have one always-present handler per connection
	ScopeBrowser Scope = iota
	// ScopeTarget domains have a handler per target, selected by targetId
	ScopeTarget
)

// DomainSpec is static metadata about a domain
type DomainSpec struct {
	Name  Domain
	Scope Scope
	// Enable means the domain has an enable verb that gates its events
	// and, for target-scoped domains, every other verb.
	Enable bool
}

var domainSpecs = map[Domain]DomainSpec{
	DomainBrowser:       {Name: DomainBrowser, Scope: ScopeBrowser},
	DomainTarget:        {Name: DomainTarget, Scope: ScopeBrowser, Enable: true},
	DomainPage:          {Name: DomainPage, Scope: ScopeTarget, Enable: true},
	DomainNetwork:       {Name: DomainNetwork, Scope: ScopeTarget, Enable: true},
	DomainRuntime:       {Name: DomainRuntime, Scope: ScopeTarget, Enable: true},
	DomainAccessibility: {Name: DomainAccessibility, Scope: ScopeTarget},
}

// Spec returns the domain metadata
func (d Domain) Spec() (DomainSpec, bool) {
	spec, ok := domainSpecs[d]
	return spec, ok
}

// MethodID is the closed set of callable verbs
type MethodID int

const (
	MethodUnknown MethodID = iota

	BrowserClose
	BrowserGetInfo
	BrowserSetIgnoreHTTPSErrors
	BrowserGrantPermissions
	BrowserResetPermissions
	BrowserSetCookies
	BrowserGetCookies
	BrowserDeleteCookies

	TargetEnable
	TargetAttachToTarget
	TargetNewPage
	TargetCreateBrowserContext
	TargetRemoveBrowserContext
	TargetGetBrowserContexts

	PageEnable
	PageClose
	PageNavigate
	PageGoBack
	PageGoForward
	PageReload
	PageSetViewport
	PageScreenshot
	PageDispatchKeyEvent
	PageDispatchMouseEvent
	PageInsertText
	PageHandleDialog
	PageAddScriptToEvaluateOnNewDocument
	PageRemoveScriptToEvaluateOnNewDocument
	PageSetUserAgent
	PageSetJavascriptEnabled
	PageSetEmulatedMedia
	PageSetCacheDisabled
	PageAddBinding
	PageEvaluate

	NetworkEnable
	NetworkSetRequestInterception
	NetworkSetExtraHTTPHeaders
	NetworkAbortSuspendedRequest
	NetworkResumeSuspendedRequest
	NetworkGetResponseBody

	RuntimeEnable
	RuntimeEvaluate
	RuntimeCallFunction
	RuntimeGetObjectProperties
	RuntimeDisposeObject

	AccessibilityGetFullAXTree

	methodCount
)

// MethodSpec is the static descriptor of a verb
type MethodSpec struct {
	Domain  Domain
	Name    string
	Params  *s.Descriptor
	Returns *s.Descriptor
}

// Qualified returns "Domain.name"
func (m MethodSpec) Qualified() string {
	return string(m.Domain) + "." + m.Name
}

// IsEnable reports whether the verb is its domain's enable
func (m MethodSpec) IsEnable() bool {
	return m.Name == "enable"
}

var empty = s.Object(s.Fields{})

var methodTable = [methodCount]MethodSpec{
	BrowserClose:   {Domain: DomainBrowser, Name: "close"},
	BrowserGetInfo: {Domain: DomainBrowser, Name: "getInfo", Returns: s.Object(s.Fields{"userAgent": s.String, "version": s.String})},
	BrowserSetIgnoreHTTPSErrors: {Domain: DomainBrowser, Name: "setIgnoreHTTPSErrors",
		Params: s.Object(s.Fields{"enabled": s.Boolean})},
	BrowserGrantPermissions: {Domain: DomainBrowser, Name: "grantPermissions",
		Params: s.Object(s.Fields{
			"origin":           s.String,
			"browserContextId": s.Optional(s.String),
			"permissions":      s.Array(s.Enum("geo", "microphone", "camera", "desktop-notifications")),
		})},
	BrowserResetPermissions: {Domain: DomainBrowser, Name: "resetPermissions",
		Params: s.Object(s.Fields{"browserContextId": s.Optional(s.String)})},
	BrowserSetCookies: {Domain: DomainBrowser, Name: "setCookies",
		Params: s.Object(s.Fields{"browserContextId": s.Optional(s.String), "cookies": s.Array(setCookieSchema)})},
	BrowserGetCookies: {Domain: DomainBrowser, Name: "getCookies",
		Params:  s.Object(s.Fields{"browserContextId": s.Optional(s.String)}),
		Returns: s.Object(s.Fields{"cookies": s.Array(CookieSchema)})},
	BrowserDeleteCookies: {Domain: DomainBrowser, Name: "deleteCookies",
		Params: s.Object(s.Fields{"browserContextId": s.Optional(s.String)})},

	TargetEnable: {Domain: DomainTarget, Name: "enable"},
	TargetAttachToTarget: {Domain: DomainTarget, Name: "attachToTarget",
		Params:  s.Object(s.Fields{"targetId": s.String}),
		Returns: s.Object(s.Fields{"sessionId": s.String})},
	TargetNewPage: {Domain: DomainTarget, Name: "newPage",
		Params:  s.Object(s.Fields{"browserContextId": s.Optional(s.String)}),
		Returns: s.Object(s.Fields{"targetId": s.String})},
	TargetCreateBrowserContext: {Domain: DomainTarget, Name: "createBrowserContext",
		Returns: s.Object(s.Fields{"browserContextId": s.String})},
	TargetRemoveBrowserContext: {Domain: DomainTarget, Name: "removeBrowserContext",
		Params: s.Object(s.Fields{"browserContextId": s.String})},
	TargetGetBrowserContexts: {Domain: DomainTarget, Name: "getBrowserContexts",
		Returns: s.Object(s.Fields{"browserContextIds": s.Array(s.String)})},

	PageEnable: {Domain: DomainPage, Name: "enable"},
	PageClose: {Domain: DomainPage, Name: "close",
		Params: s.Object(s.Fields{"runBeforeUnload": s.Optional(s.Boolean)})},
	PageNavigate: {Domain: DomainPage, Name: "navigate",
		Params:  s.Object(s.Fields{"frameId": s.String, "url": s.String, "referer": s.Optional(s.String)}),
		Returns: navigationResultSchema},
	PageGoBack: {Domain: DomainPage, Name: "goBack",
		Params: s.Object(s.Fields{"frameId": s.String}), Returns: navigationResultSchema},
	PageGoForward: {Domain: DomainPage, Name: "goForward",
		Params: s.Object(s.Fields{"frameId": s.String}), Returns: navigationResultSchema},
	PageReload: {Domain: DomainPage, Name: "reload",
		Params:  s.Object(s.Fields{"frameId": s.String}),
		Returns: s.Object(s.Fields{"navigationId": s.String, "navigationURL": s.String})},
	PageSetViewport: {Domain: DomainPage, Name: "setViewport",
		Params: s.Object(s.Fields{"viewport": s.Nullable(s.Object(s.Fields{
			"width":             s.Number,
			"height":            s.Number,
			"deviceScaleFactor": s.Number,
			"isMobile":          s.Boolean,
			"hasTouch":          s.Boolean,
			"isLandscape":       s.Boolean,
		}))})},
	PageScreenshot: {Domain: DomainPage, Name: "screenshot",
		Params: s.Object(s.Fields{
			"mimeType": s.Enum("image/png", "image/jpeg"),
			"fullPage": s.Optional(s.Boolean),
			"clip":     s.Optional(rect),
		}),
		Returns: s.Object(s.Fields{"data": s.String})},
	PageDispatchKeyEvent: {Domain: DomainPage, Name: "dispatchKeyEvent",
		Params: s.Object(s.Fields{
			"type":     s.String,
			"key":      s.String,
			"keyCode":  s.Number,
			"location": s.Number,
			"code":     s.String,
			"repeat":   s.Boolean,
		})},
	PageDispatchMouseEvent: {Domain: DomainPage, Name: "dispatchMouseEvent",
		Params: s.Object(s.Fields{
			"type":       s.String,
			"button":     s.Number,
			"x":          s.Number,
			"y":          s.Number,
			"modifiers":  s.Number,
			"clickCount": s.Optional(s.Number),
			"buttons":    s.Number,
		})},
	PageInsertText: {Domain: DomainPage, Name: "insertText",
		Params: s.Object(s.Fields{"text": s.String})},
	PageHandleDialog: {Domain: DomainPage, Name: "handleDialog",
		Params: s.Object(s.Fields{"dialogId": s.String, "accept": s.Boolean, "promptText": s.Optional(s.String)})},
	PageAddScriptToEvaluateOnNewDocument: {Domain: DomainPage, Name: "addScriptToEvaluateOnNewDocument",
		Params:  s.Object(s.Fields{"script": s.String}),
		Returns: s.Object(s.Fields{"scriptId": s.String})},
	PageRemoveScriptToEvaluateOnNewDocument: {Domain: DomainPage, Name: "removeScriptToEvaluateOnNewDocument",
		Params: s.Object(s.Fields{"scriptId": s.String})},
	PageSetUserAgent: {Domain: DomainPage, Name: "setUserAgent",
		Params: s.Object(s.Fields{"userAgent": s.Nullable(s.String)})},
	PageSetJavascriptEnabled: {Domain: DomainPage, Name: "setJavascriptEnabled",
		Params: s.Object(s.Fields{"enabled": s.Boolean})},
	PageSetEmulatedMedia: {Domain: DomainPage, Name: "setEmulatedMedia",
		Params: s.Object(s.Fields{"media": s.Enum("screen", "print", "")})},
	PageSetCacheDisabled: {Domain: DomainPage, Name: "setCacheDisabled",
		Params: s.Object(s.Fields{"cacheDisabled": s.Boolean})},
	PageAddBinding: {Domain: DomainPage, Name: "addBinding",
		Params: s.Object(s.Fields{"name": s.String})},
	PageEvaluate: {Domain: DomainPage, Name: "evaluate",
		Params: runtimeEvaluateParams, Returns: evaluationResultSchema},

	NetworkEnable: {Domain: DomainNetwork, Name: "enable"},
	NetworkSetRequestInterception: {Domain: DomainNetwork, Name: "setRequestInterception",
		Params: s.Object(s.Fields{"enabled": s.Boolean})},
	NetworkSetExtraHTTPHeaders: {Domain: DomainNetwork, Name: "setExtraHTTPHeaders",
		Params: s.Object(s.Fields{"headers": s.Array(HeaderSchema)})},
	NetworkAbortSuspendedRequest: {Domain: DomainNetwork, Name: "abortSuspendedRequest",
		Params: s.Object(s.Fields{"requestId": s.String})},
	NetworkResumeSuspendedRequest: {Domain: DomainNetwork, Name: "resumeSuspendedRequest",
		Params: s.Object(s.Fields{"requestId": s.String, "headers": s.Optional(s.Array(HeaderSchema))})},
	NetworkGetResponseBody: {Domain: DomainNetwork, Name: "getResponseBody",
		Params:  s.Object(s.Fields{"requestId": s.String}),
		Returns: s.Object(s.Fields{"base64body": s.String, "mimeType": s.String})},

	RuntimeEnable:   {Domain: DomainRuntime, Name: "enable"},
	RuntimeEvaluate: {Domain: DomainRuntime, Name: "evaluate", Params: runtimeEvaluateParams, Returns: evaluationResultSchema},
	RuntimeCallFunction: {Domain: DomainRuntime, Name: "callFunction",
		Params: s.Object(s.Fields{
			"executionContextId":  s.String,
			"functionDeclaration": s.String,
			"args":                s.Array(callArgumentSchema),
			"returnByValue":       s.Optional(s.Boolean),
		}),
		Returns: evaluationResultSchema},
	RuntimeGetObjectProperties: {Domain: DomainRuntime, Name: "getObjectProperties",
		Params: s.Object(s.Fields{"executionContextId": s.String, "objectId": s.String}),
		Returns: s.Object(s.Fields{"properties": s.Array(s.Object(s.Fields{
			"name":  s.String,
			"value": RemoteObjectSchema,
		}))})},
	RuntimeDisposeObject: {Domain: DomainRuntime, Name: "disposeObject",
		Params: s.Object(s.Fields{"executionContextId": s.String, "objectId": s.String})},

	AccessibilityGetFullAXTree: {Domain: DomainAccessibility, Name: "getFullAXTree",
		Returns: s.Object(s.Fields{"tree": AXNodeSchema})},
}

// EventID is the closed set of outbound events
type EventID int

const (
	EventUnknown EventID = iota

	TargetAttachedToTarget
	TargetDetachedFromTarget
	TargetTargetCreated
	TargetTargetDestroyed
	TargetTargetInfoChanged

	PageEventFired
	PageUncaughtError
	PageFrameAttached
	PageFrameDetached
	PageNavigationStarted
	PageNavigationCommitted
	PageNavigationAborted
	PageSameDocumentNavigation
	PageConsole
	PageDialogOpened
	PageDialogClosed
	PageBindingCalled

	NetworkRequestWillBeSent
	NetworkResponseReceived
	NetworkRequestFinished
	NetworkRequestFailed

	RuntimeExecutionContextCreated
	RuntimeExecutionContextDestroyed

	eventCount
)

// EventSpec is the static descriptor of an event
type EventSpec struct {
	Domain Domain
	Name   string
	Params *s.Descriptor
}

// Qualified returns "Domain.name"
func (e EventSpec) Qualified() string {
	return string(e.Domain) + "." + e.Name
}

var eventTable = [eventCount]EventSpec{
	TargetAttachedToTarget: {Domain: DomainTarget, Name: "attachedToTarget",
		Params: s.Object(s.Fields{"sessionId": s.String, "targetInfo": TargetInfoSchema})},
	TargetDetachedFromTarget: {Domain: DomainTarget, Name: "detachedFromTarget",
		Params: s.Object(s.Fields{"sessionId": s.String})},
	TargetTargetCreated:     {Domain: DomainTarget, Name: "targetCreated", Params: TargetInfoSchema},
	TargetTargetDestroyed:   {Domain: DomainTarget, Name: "targetDestroyed", Params: TargetInfoSchema},
	TargetTargetInfoChanged: {Domain: DomainTarget, Name: "targetInfoChanged", Params: TargetInfoSchema},

	PageEventFired: {Domain: DomainPage, Name: "eventFired",
		Params: s.Object(s.Fields{"frameId": s.String, "name": s.Enum("load", "DOMContentLoaded")})},
	PageUncaughtError: {Domain: DomainPage, Name: "uncaughtError",
		Params: s.Object(s.Fields{"frameId": s.String, "message": s.String, "stack": s.String})},
	PageFrameAttached: {Domain: DomainPage, Name: "frameAttached",
		Params: s.Object(s.Fields{"frameId": s.String, "parentFrameId": s.Optional(s.String)})},
	PageFrameDetached: {Domain: DomainPage, Name: "frameDetached",
		Params: s.Object(s.Fields{"frameId": s.String})},
	PageNavigationStarted: {Domain: DomainPage, Name: "navigationStarted",
		Params: s.Object(s.Fields{"frameId": s.String, "navigationId": s.String, "url": s.String})},
	PageNavigationCommitted: {Domain: DomainPage, Name: "navigationCommitted",
		Params: s.Object(s.Fields{"frameId": s.String, "navigationId": s.String, "url": s.String, "name": s.String})},
	PageNavigationAborted: {Domain: DomainPage, Name: "navigationAborted",
		Params: s.Object(s.Fields{"frameId": s.String, "navigationId": s.String, "errorText": s.String})},
	PageSameDocumentNavigation: {Domain: DomainPage, Name: "sameDocumentNavigation",
		Params: s.Object(s.Fields{"frameId": s.String, "url": s.String})},
	PageConsole: {Domain: DomainPage, Name: "console",
		Params: s.Object(s.Fields{
			"frameId": s.String,
			"args":    s.Array(RemoteObjectSchema),
			"type":    s.String,
			"location": s.Object(s.Fields{
				"columnNumber": s.Number,
				"lineNumber":   s.Number,
				"url":          s.String,
			}),
		})},
	PageDialogOpened: {Domain: DomainPage, Name: "dialogOpened",
		Params: s.Object(s.Fields{
			"dialogId":     s.String,
			"type":         s.Enum("prompt", "alert", "confirm", "beforeunload"),
			"message":      s.String,
			"defaultValue": s.Optional(s.String),
		})},
	PageDialogClosed: {Domain: DomainPage, Name: "dialogClosed",
		Params: s.Object(s.Fields{"dialogId": s.String})},
	PageBindingCalled: {Domain: DomainPage, Name: "bindingCalled",
		Params: s.Object(s.Fields{"frameId": s.String, "name": s.String, "payload": s.Any})},

	NetworkRequestWillBeSent: {Domain: DomainNetwork, Name: "requestWillBeSent",
		Params: s.Object(s.Fields{
			"frameId":             s.Optional(s.String),
			"requestId":           s.String,
			"redirectedFrom":      s.Optional(s.String),
			"postData":            s.Optional(s.String),
			"headers":             s.Array(HeaderSchema),
			"suspended":           s.Optional(s.Boolean),
			"url":                 s.String,
			"method":              s.String,
			"isNavigationRequest": s.Boolean,
			"cause":               s.String,
		})},
	NetworkResponseReceived: {Domain: DomainNetwork, Name: "responseReceived",
		Params: s.Object(s.Fields{
			"securityDetails": s.Nullable(s.Object(s.Fields{
				"protocol":    s.String,
				"subjectName": s.String,
				"issuer":      s.String,
				"validFrom":   s.Number,
				"validTo":     s.Number,
			})),
			"requestId":       s.String,
			"fromCache":       s.Boolean,
			"remoteIPAddress": s.Optional(s.String),
			"remotePort":      s.Optional(s.Number),
			"status":          s.Number,
			"statusText":      s.String,
			"headers":         s.Array(HeaderSchema),
		})},
	NetworkRequestFinished: {Domain: DomainNetwork, Name: "requestFinished",
		Params: s.Object(s.Fields{"requestId": s.String})},
	NetworkRequestFailed: {Domain: DomainNetwork, Name: "requestFailed",
		Params: s.Object(s.Fields{"requestId": s.String, "errorCode": s.String})},

	RuntimeExecutionContextCreated: {Domain: DomainRuntime, Name: "executionContextCreated",
		Params: s.Object(s.Fields{
			"executionContextId": s.String,
			"auxData":            s.Object(s.Fields{"frameId": s.String}),
		})},
	RuntimeExecutionContextDestroyed: {Domain: DomainRuntime, Name: "executionContextDestroyed",
		Params: s.Object(s.Fields{"executionContextId": s.String})},
}

var (
	methodsByName = make(map[string]MethodID, methodCount)
	eventsByName  = make(map[string]EventID, eventCount)
)

// targetParam is stamped onto every verb and event of a target-scoped
// domain.
var targetParam = s.Fields{"targetId": s.String}

func init() {
	for i := MethodID(1); i < methodCount; i++ {
		spec := &methodTable[i]
		if spec.Params == nil {
			spec.Params = empty
		}
		if spec.Returns == nil {
			spec.Returns = empty
		}
		if domainSpecs[spec.Domain].Scope == ScopeTarget {
			spec.Params = spec.Params.Extend(targetParam)
		}
		methodsByName[spec.Qualified()] = i
	}
	for i := EventID(1); i < eventCount; i++ {
		spec := &eventTable[i]
		if domainSpecs[spec.Domain].Scope == ScopeTarget {
			spec.Params = spec.Params.Extend(targetParam)
		}
		eventsByName[spec.Qualified()] = i
	}
}

// LookupMethod resolves "Domain.verb"
func LookupMethod(name string) (MethodID, bool) {
	id, ok := methodsByName[name]
	return id, ok
}

// LookupEvent resolves "Domain.event"
func LookupEvent(name string) (EventID, bool) {
	id, ok := eventsByName[name]
	return id, ok
}

// Spec returns the verb descriptor
func (m MethodID) Spec() MethodSpec {
	if m <= MethodUnknown || m >= methodCount {
		return MethodSpec{}
	}
	return methodTable[m]
}

func (m MethodID) String() string {
	if m <= MethodUnknown || m >= methodCount {
		return "unknown"
	}
	return methodTable[m].Qualified()
}

// Spec returns the event descriptor
func (e EventID) Spec() EventSpec {
	if e <= EventUnknown || e >= eventCount {
		return EventSpec{}
	}
	return eventTable[e]
}

func (e EventID) String() string {
	if e <= EventUnknown || e >= eventCount {
		return "unknown"
	}
	return eventTable[e].Qualified()
}

// Methods lists every verb id
func Methods() []MethodID {
	out := make([]MethodID, 0, methodCount-1)
	for i := MethodID(1); i < methodCount; i++ {
		out = append(out, i)
	}
	return out
}

// SplitMethod splits "Domain.verb" into its parts
func SplitMethod(name string) (Domain, string, bool) {
	domain, verb, ok := strings.Cut(name, ".")
	if !ok || domain == "" || verb == "" {
		return "", "", false
	}
	return Domain(domain), verb, true
}
