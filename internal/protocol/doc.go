// Package protocol defines the remote-automation wire format.
//
// Every verb and event is a member of a closed enumeration (MethodID,
// EventID) carrying static schema metadata. Verbs and events of
// target-scoped domains additionally require a targetId parameter.
//
// Wire shapes:
//   - Request:  {id, method: "Domain.verb", params}
//   - Result:   {id, result}
//   - Failure:  {id, error: {message, data}}
//   - Event:    {method: "Domain.event", params}
package protocol
