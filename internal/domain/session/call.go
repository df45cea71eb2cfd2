package session

import (
	"context"
	"encoding/json"

	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
)

// call is one validated inbound request.
type call struct {
	ctx    context.Context
	method protocol.MethodID
	params map[string]interface{}
	after  []func()
}

// afterReply defers fn until the reply has been written.
func (c *call) afterReply(fn func()) {
	c.after = append(c.after, fn)
}

func (c *call) targetID() string {
	id, _ := c.params["targetId"].(string)
	return id
}

func (c *call) string(key string) string {
	v, _ := c.params[key].(string)
	return v
}

// decode converts the validated params into P.
func decode[P any](c *call) (P, error) {
	var p P
	data, err := protocol.Marshal(c.params)
	if err != nil {
		return p, err
	}
	err = protocol.Unmarshal(data, &p)
	return p, err
}

// raw returns a content reply as-is so it can be validated and passed on.
func raw(result json.RawMessage, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	return result, nil
}
