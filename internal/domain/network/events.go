package network

import (
	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
)

// RequestWillBeSent is the payload of Network.requestWillBeSent.
type RequestWillBeSent struct {
	TargetID            string            `json:"targetId"`
	FrameID             string            `json:"frameId,omitempty"`
	RequestID           string            `json:"requestId"`
	RedirectedFrom      string            `json:"redirectedFrom,omitempty"`
	PostData            *string           `json:"postData,omitempty"`
	Headers             []protocol.Header `json:"headers"`
	Suspended           bool              `json:"suspended,omitempty"`
	URL                 string            `json:"url"`
	Method              string            `json:"method"`
	IsNavigationRequest bool              `json:"isNavigationRequest"`
	Cause               string            `json:"cause"`
}

// SecurityDetails describes the TLS connection of a response.
type SecurityDetails struct {
	Protocol    string  `json:"protocol"`
	SubjectName string  `json:"subjectName"`
	Issuer      string  `json:"issuer"`
	ValidFrom   float64 `json:"validFrom"`
	ValidTo     float64 `json:"validTo"`
}

// ResponseReceived is the payload of Network.responseReceived.
type ResponseReceived struct {
	TargetID        string            `json:"targetId"`
	RequestID       string            `json:"requestId"`
	SecurityDetails *SecurityDetails  `json:"securityDetails"`
	FromCache       bool              `json:"fromCache"`
	RemoteIPAddress string            `json:"remoteIPAddress,omitempty"`
	RemotePort      int               `json:"remotePort,omitempty"`
	Status          int               `json:"status"`
	StatusText      string            `json:"statusText"`
	Headers         []protocol.Header `json:"headers"`
}

// RequestFinished is the payload of Network.requestFinished.
type RequestFinished struct {
	TargetID  string `json:"targetId"`
	RequestID string `json:"requestId"`
}

// RequestFailed is the payload of Network.requestFailed.
type RequestFailed struct {
	TargetID  string `json:"targetId"`
	RequestID string `json:"requestId"`
	ErrorCode string `json:"errorCode"`
}

func wireHeaders(in []engine.Header) []protocol.Header {
	out := make([]protocol.Header, 0, len(in))
	for _, h := range in {
		out = append(out, protocol.Header{Name: h.Name, Value: h.Value})
	}
	return out
}

func responsePayload(targetID, requestID string, resp engine.ResponseInfo) *ResponseReceived {
	payload := &ResponseReceived{
		TargetID:        targetID,
		RequestID:       requestID,
		FromCache:       resp.FromCache,
		RemoteIPAddress: resp.RemoteIP,
		RemotePort:      resp.RemotePort,
		Status:          resp.Status,
		StatusText:      resp.StatusText,
		Headers:         wireHeaders(resp.Headers),
	}
	if sec := resp.Security; sec != nil {
		payload.SecurityDetails = &SecurityDetails{
			Protocol:    sec.Protocol,
			SubjectName: sec.SubjectName,
			Issuer:      sec.Issuer,
			ValidFrom:   sec.ValidFrom,
			ValidTo:     sec.ValidTo,
		}
	}
	return payload
}
