package session

import (
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
)

// route serves one verb.
type route func(d *Dispatcher, c *call) (interface{}, error)

// routes is filled in init to keep handlers free to reach the dispatcher.
var routes map[protocol.MethodID]route

func browser(fn func(b *browserDomain, c *call) (interface{}, error)) route {
	return func(d *Dispatcher, c *call) (interface{}, error) {
		return fn(d.browser, c)
	}
}

func targets(fn func(t *targetDomain, c *call) (interface{}, error)) route {
	return func(d *Dispatcher, c *call) (interface{}, error) {
		return fn(d.target, c)
	}
}

// onTarget resolves the handler set of the call's targetId first.
func onTarget(domain protocol.Domain, fn func(ts *targetSession, c *call) (interface{}, error)) route {
	return func(d *Dispatcher, c *call) (interface{}, error) {
		ts, err := d.sessionFor(c, domain)
		if err != nil {
			return nil, err
		}
		return fn(ts, c)
	}
}

// forward sends the call to content under method.
func forward(domain protocol.Domain, method string) route {
	return onTarget(domain, func(ts *targetSession, c *call) (interface{}, error) {
		return raw(ts.bridge.Send(c.ctx, method, c.params))
	})
}

func page(fn func(h *pageHandler, c *call) (interface{}, error)) route {
	return onTarget(protocol.DomainPage, func(ts *targetSession, c *call) (interface{}, error) {
		return fn(ts.page, c)
	})
}

func net(fn func(h *networkHandler, c *call) (interface{}, error)) route {
	return onTarget(protocol.DomainNetwork, func(ts *targetSession, c *call) (interface{}, error) {
		return fn(ts.network, c)
	})
}

func runtime(method string) route {
	return onTarget(protocol.DomainRuntime, func(ts *targetSession, c *call) (interface{}, error) {
		return ts.runtime.forward(c, method)
	})
}

func init() {
	routes = map[protocol.MethodID]route{
		protocol.BrowserClose:                browser((*browserDomain).close),
		protocol.BrowserGetInfo:              browser((*browserDomain).getInfo),
		protocol.BrowserSetIgnoreHTTPSErrors: browser((*browserDomain).setIgnoreHTTPSErrors),
		protocol.BrowserGrantPermissions:     browser((*browserDomain).grantPermissions),
		protocol.BrowserResetPermissions:     browser((*browserDomain).resetPermissions),
		protocol.BrowserSetCookies:           browser((*browserDomain).setCookies),
		protocol.BrowserGetCookies:           browser((*browserDomain).getCookies),
		protocol.BrowserDeleteCookies:        browser((*browserDomain).deleteCookies),

		protocol.TargetEnable:               targets((*targetDomain).enable),
		protocol.TargetAttachToTarget:       targets((*targetDomain).attachToTarget),
		protocol.TargetNewPage:              targets((*targetDomain).newPage),
		protocol.TargetCreateBrowserContext: targets((*targetDomain).createBrowserContext),
		protocol.TargetRemoveBrowserContext: targets((*targetDomain).removeBrowserContext),
		protocol.TargetGetBrowserContexts:   targets((*targetDomain).getBrowserContexts),

		protocol.PageEnable:                              page((*pageHandler).enable),
		protocol.PageClose:                               page((*pageHandler).close),
		protocol.PageSetViewport:                         page((*pageHandler).setViewport),
		protocol.PageHandleDialog:                        page((*pageHandler).handleDialog),
		protocol.PageNavigate:                            forward(protocol.DomainPage, "Page.navigate"),
		protocol.PageGoBack:                              forward(protocol.DomainPage, "Page.goBack"),
		protocol.PageGoForward:                           forward(protocol.DomainPage, "Page.goForward"),
		protocol.PageReload:                              forward(protocol.DomainPage, "Page.reload"),
		protocol.PageScreenshot:                          forward(protocol.DomainPage, "Page.screenshot"),
		protocol.PageDispatchKeyEvent:                    forward(protocol.DomainPage, "Page.dispatchKeyEvent"),
		protocol.PageDispatchMouseEvent:                  forward(protocol.DomainPage, "Page.dispatchMouseEvent"),
		protocol.PageInsertText:                          forward(protocol.DomainPage, "Page.insertText"),
		protocol.PageAddScriptToEvaluateOnNewDocument:    forward(protocol.DomainPage, "Page.addScriptToEvaluateOnNewDocument"),
		protocol.PageRemoveScriptToEvaluateOnNewDocument: forward(protocol.DomainPage, "Page.removeScriptToEvaluateOnNewDocument"),
		protocol.PageSetUserAgent:                        forward(protocol.DomainPage, "Page.setUserAgent"),
		protocol.PageSetJavascriptEnabled:                forward(protocol.DomainPage, "Page.setJavascriptEnabled"),
		protocol.PageSetEmulatedMedia:                    forward(protocol.DomainPage, "Page.setEmulatedMedia"),
		protocol.PageSetCacheDisabled:                    forward(protocol.DomainPage, "Page.setCacheDisabled"),
		protocol.PageAddBinding:                          forward(protocol.DomainPage, "Page.addBinding"),
		protocol.PageEvaluate:                            forward(protocol.DomainPage, "Runtime.evaluate"),

		protocol.NetworkEnable:                 net((*networkHandler).enable),
		protocol.NetworkSetRequestInterception: net((*networkHandler).setRequestInterception),
		protocol.NetworkSetExtraHTTPHeaders:    net((*networkHandler).setExtraHTTPHeaders),
		protocol.NetworkAbortSuspendedRequest:  net((*networkHandler).abortSuspendedRequest),
		protocol.NetworkResumeSuspendedRequest: net((*networkHandler).resumeSuspendedRequest),
		protocol.NetworkGetResponseBody:        net((*networkHandler).getResponseBody),

		protocol.RuntimeEnable: onTarget(protocol.DomainRuntime, func(ts *targetSession, c *call) (interface{}, error) {
			return ts.runtime.enable(c)
		}),
		protocol.RuntimeEvaluate:            runtime("Runtime.evaluate"),
		protocol.RuntimeCallFunction:        runtime("Runtime.callFunction"),
		protocol.RuntimeGetObjectProperties: runtime("Runtime.getObjectProperties"),
		protocol.RuntimeDisposeObject:       runtime("Runtime.disposeObject"),

		protocol.AccessibilityGetFullAXTree: onTarget(protocol.DomainAccessibility, func(ts *targetSession, c *call) (interface{}, error) {
			return ts.accessibility.getFullAXTree(c)
		}),
	}
}
