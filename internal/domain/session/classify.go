package session

import (
	"errors"

	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/bridge"
	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/browsercontext"
	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/network"
	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/target"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol/schema"
)

// classify maps a handler error onto the wire taxonomy.
func classify(err error) *protocol.Error {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return perr
	}

	var verr *schema.Error
	var remote *bridge.RemoteError
	switch {
	case errors.Is(err, bridge.ErrDisposed):
		return protocol.Wrap(protocol.KindBridgeDisposed, err)
	case errors.Is(err, target.ErrNotFound),
		errors.Is(err, target.ErrClosed),
		errors.Is(err, target.ErrNotPage):
		return protocol.Wrap(protocol.KindTargetNotFound, err)
	case errors.Is(err, network.ErrNotSuspended),
		errors.Is(err, network.ErrInterceptionDisabled):
		return protocol.Wrap(protocol.KindInterception, err)
	case errors.Is(err, browsercontext.ErrNotFound),
		errors.Is(err, errUnknownDialog):
		return protocol.Wrap(protocol.KindProtocol, err)
	case errors.As(err, &verr):
		return protocol.Wrap(protocol.KindValidation, err)
	case errors.As(err, &remote):
		return protocol.Wrap(protocol.KindInternal, err).WithData(remote.Stack)
	default:
		return protocol.Wrap(protocol.KindInternal, err)
	}
}
