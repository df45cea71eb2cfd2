package protocol

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

var codec = sonic.ConfigStd

// Marshal encodes v with the wire codec
func Marshal(v interface{}) ([]byte, error) {
	return codec.Marshal(v)
}

// Unmarshal decodes data with the wire codec
func Unmarshal(data []byte, v interface{}) error {
	return codec.Unmarshal(data, v)
}

// Request is an inbound call
type Request struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorPayload is the error member of a failed reply
type ErrorPayload struct {
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Result is a successful reply
type Result struct {
	ID     int64       `json:"id"`
	Result interface{} `json:"result"`
}

// Failure is an error reply. ID is absent when the request carried none.
type Failure struct {
	ID    *int64       `json:"id,omitempty"`
	Error ErrorPayload `json:"error"`
}

// Event is an outbound notification
type Event struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// Header is a name/value pair as it appears on the wire
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TargetInfo describes a target in Target domain payloads
type TargetInfo struct {
	Type             string `json:"type"`
	TargetID         string `json:"targetId"`
	BrowserContextID string `json:"browserContextId,omitempty"`
	URL              string `json:"url"`
	OpenerID         string `json:"openerId,omitempty"`
}

// Empty is the result of verbs that return nothing
type Empty struct{}

// Normalize decodes raw params into a plain value for validation. Absent
// params become an empty object.
func Normalize(raw json.RawMessage) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := codec.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Plain round-trips v through the codec so it can be validated like
// inbound data.
func Plain(v interface{}) (interface{}, error) {
	if v == nil {
		return map[string]interface{}{}, nil
	}
	data, err := codec.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := codec.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return map[string]interface{}{}, nil
	}
	return out, nil
}
