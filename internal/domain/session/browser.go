package session

import (
	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
)

type permissionsParams struct {
	Origin           string   `json:"origin"`
	BrowserContextID string   `json:"browserContextId"`
	Permissions      []string `json:"permissions"`
}

type setCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	URL      string  `json:"url"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
	SameSite string  `json:"sameSite"`
	Expires  float64 `json:"expires"`
}

type setCookiesParams struct {
	BrowserContextID string      `json:"browserContextId"`
	Cookies          []setCookie `json:"cookies"`
}

type cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	Size     int     `json:"size"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	Session  bool    `json:"session"`
	SameSite string  `json:"sameSite"`
}

type cookiesResult struct {
	Cookies []cookie `json:"cookies"`
}

type browserInfo struct {
	UserAgent string `json:"userAgent"`
	Version   string `json:"version"`
}

// browserDomain serves the Browser domain, which needs no enable.
type browserDomain struct {
	d *Dispatcher
}

func (b *browserDomain) engine() engine.Engine {
	return b.d.deps.Engine
}

func (b *browserDomain) partition(c *call) (engine.Partition, error) {
	return b.d.deps.Contexts.ResolvePartition(c.string("browserContextId"))
}

// close is answered before shutdown begins.
func (b *browserDomain) close(c *call) (interface{}, error) {
	eng := b.engine()
	c.afterReply(eng.Quit)
	return protocol.Empty{}, nil
}

func (b *browserDomain) getInfo(c *call) (interface{}, error) {
	product, userAgent := b.engine().Version()
	return browserInfo{UserAgent: userAgent, Version: product}, nil
}

func (b *browserDomain) setIgnoreHTTPSErrors(c *call) (interface{}, error) {
	enabled, _ := c.params["enabled"].(bool)
	b.engine().SetIgnoreHTTPSErrors(enabled)
	return protocol.Empty{}, nil
}

func (b *browserDomain) grantPermissions(c *call) (interface{}, error) {
	p, err := decode[permissionsParams](c)
	if err != nil {
		return nil, err
	}
	partition, err := b.partition(c)
	if err != nil {
		return nil, err
	}
	if err := b.engine().GrantPermissions(partition, p.Origin, p.Permissions); err != nil {
		return nil, err
	}
	return protocol.Empty{}, nil
}

func (b *browserDomain) resetPermissions(c *call) (interface{}, error) {
	partition, err := b.partition(c)
	if err != nil {
		return nil, err
	}
	if err := b.engine().ResetPermissions(partition); err != nil {
		return nil, err
	}
	return protocol.Empty{}, nil
}

func (b *browserDomain) setCookies(c *call) (interface{}, error) {
	p, err := decode[setCookiesParams](c)
	if err != nil {
		return nil, err
	}
	partition, err := b.partition(c)
	if err != nil {
		return nil, err
	}

	cookies := make([]engine.Cookie, len(p.Cookies))
	for i, in := range p.Cookies {
		cookies[i] = engine.Cookie{
			Name:     in.Name,
			Value:    in.Value,
			URL:      in.URL,
			Domain:   in.Domain,
			Path:     in.Path,
			Expires:  in.Expires,
			HTTPOnly: in.HTTPOnly,
			Secure:   in.Secure,
			Session:  in.Expires <= 0,
			SameSite: in.SameSite,
		}
	}
	if err := b.engine().SetCookies(partition, cookies); err != nil {
		return nil, err
	}
	return protocol.Empty{}, nil
}

func (b *browserDomain) getCookies(c *call) (interface{}, error) {
	partition, err := b.partition(c)
	if err != nil {
		return nil, err
	}
	stored, err := b.engine().Cookies(partition)
	if err != nil {
		return nil, err
	}

	out := cookiesResult{Cookies: make([]cookie, len(stored))}
	for i, ck := range stored {
		sameSite := ck.SameSite
		if sameSite == "" {
			sameSite = "None"
		}
		out.Cookies[i] = cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Expires:  ck.Expires,
			Size:     len(ck.Name) + len(ck.Value),
			HTTPOnly: ck.HTTPOnly,
			Secure:   ck.Secure,
			Session:  ck.Session,
			SameSite: sameSite,
		}
	}
	return out, nil
}

func (b *browserDomain) deleteCookies(c *call) (interface{}, error) {
	partition, err := b.partition(c)
	if err != nil {
		return nil, err
	}
	if err := b.engine().ClearCookies(partition); err != nil {
		return nil, err
	}
	return protocol.Empty{}, nil
}
