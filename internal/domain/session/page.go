package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/remote/internal/shared/id"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errUnknownDialog = errors.New("failed to find dialog")

type dialogOpened struct {
	TargetID     string `json:"targetId"`
	DialogID     string `json:"dialogId"`
	Type         string `json:"type"`
	Message      string `json:"message"`
	DefaultValue string `json:"defaultValue,omitempty"`
}

type dialogClosed struct {
	TargetID string `json:"targetId"`
	DialogID string `json:"dialogId"`
}

type viewportParams struct {
	Viewport *struct {
		Width             float64 `json:"width"`
		Height            float64 `json:"height"`
		DeviceScaleFactor float64 `json:"deviceScaleFactor"`
		IsMobile          bool    `json:"isMobile"`
		HasTouch          bool    `json:"hasTouch"`
	} `json:"viewport"`
}

type handleDialogParams struct {
	DialogID   string `json:"dialogId"`
	Accept     bool   `json:"accept"`
	PromptText string `json:"promptText"`
}

type closeParams struct {
	RunBeforeUnload bool `json:"runBeforeUnload"`
}

// pageHandler serves the Page domain. Dialogs are observed on the browser
// side; everything else is answered by content.
type pageHandler struct {
	ts *targetSession

	mu          sync.Mutex
	dialogs     map[string]engine.Dialog
	dialogIDs   map[engine.Dialog]string
	stopDialogs func()
	disposed    bool
}

func (h *pageHandler) enable(c *call) (interface{}, error) {
	if !h.ts.markEnabled(protocol.DomainPage) {
		return protocol.Empty{}, nil
	}

	stop, err := h.ts.d.deps.Engine.ObserveDialogs(h.ts.target.Tab, h.onDialog)
	if err != nil {
		h.ts.unmarkEnabled(protocol.DomainPage)
		return nil, fmt.Errorf("failed to observe dialogs: %w", err)
	}
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		stop()
	} else {
		h.dialogs = make(map[string]engine.Dialog)
		h.dialogIDs = make(map[engine.Dialog]string)
		h.stopDialogs = stop
		h.mu.Unlock()
	}

	if _, err := h.ts.bridge.Send(c.ctx, "Page.enable", nil); err != nil {
		h.stopObservingDialogs()
		h.ts.unmarkEnabled(protocol.DomainPage)
		return nil, err
	}
	return protocol.Empty{}, nil
}

// stopObservingDialogs undoes the dialog half of enable.
func (h *pageHandler) stopObservingDialogs() {
	h.mu.Lock()
	stop := h.stopDialogs
	h.stopDialogs = nil
	h.dialogs = nil
	h.dialogIDs = nil
	h.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// close is answered first; the tab closes after the reply is written.
func (h *pageHandler) close(c *call) (interface{}, error) {
	p, err := decode[closeParams](c)
	if err != nil {
		return nil, err
	}
	targets := h.ts.d.deps.Targets
	targetID := h.ts.target.ID
	logger := h.ts.logger
	c.afterReply(func() {
		if err := targets.ClosePage(targetID, p.RunBeforeUnload); err != nil {
			logger.Warn("Failed to close page", zap.Error(err))
		}
	})
	return protocol.Empty{}, nil
}

func (h *pageHandler) setViewport(c *call) (interface{}, error) {
	p, err := decode[viewportParams](c)
	if err != nil {
		return nil, err
	}

	var size *engine.Size
	scale, mobile, touch := 0.0, false, false
	if v := p.Viewport; v != nil {
		size = &engine.Size{
			Width:             int(v.Width),
			Height:            int(v.Height),
			DeviceScaleFactor: v.DeviceScaleFactor,
			IsMobile:          v.IsMobile,
			HasTouch:          v.HasTouch,
		}
		scale, mobile, touch = v.DeviceScaleFactor, v.IsMobile, v.HasTouch
	}
	width, height, err := h.ts.d.deps.Engine.SetViewportSize(h.ts.target.Tab, size)
	if err != nil {
		return nil, fmt.Errorf("failed to resize tab: %w", err)
	}

	g, ctx := errgroup.WithContext(c.ctx)
	g.Go(func() error {
		_, err := h.ts.bridge.Send(ctx, "Page.setViewport", map[string]interface{}{
			"deviceScaleFactor": scale,
			"isMobile":          mobile,
			"hasTouch":          touch,
		})
		return err
	})
	g.Go(func() error {
		_, err := h.ts.bridge.Send(ctx, "Page.awaitViewportDimensions", map[string]interface{}{
			"width":  width,
			"height": height,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return protocol.Empty{}, nil
}

func (h *pageHandler) handleDialog(c *call) (interface{}, error) {
	p, err := decode[handleDialogParams](c)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	dialog, ok := h.dialogs[p.DialogID]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w with id = %s", errUnknownDialog, p.DialogID)
	}

	if p.Accept {
		err = dialog.Accept(p.PromptText)
	} else {
		err = dialog.Dismiss()
	}
	if err != nil {
		return nil, err
	}
	return protocol.Empty{}, nil
}

func (h *pageHandler) onDialog(ev engine.DialogEvent) {
	if ev.Closed {
		h.mu.Lock()
		dialogID, ok := h.dialogIDs[ev.Dialog]
		delete(h.dialogIDs, ev.Dialog)
		delete(h.dialogs, dialogID)
		h.mu.Unlock()
		if ok {
			h.ts.emit(protocol.PageDialogClosed, dialogClosed{TargetID: h.ts.target.ID, DialogID: dialogID})
		}
		return
	}

	dialogID := id.NewDialogID().String()
	h.mu.Lock()
	if h.disposed || h.dialogs == nil {
		h.mu.Unlock()
		return
	}
	h.dialogs[dialogID] = ev.Dialog
	h.dialogIDs[ev.Dialog] = dialogID
	h.mu.Unlock()

	h.ts.emit(protocol.PageDialogOpened, dialogOpened{
		TargetID:     h.ts.target.ID,
		DialogID:     dialogID,
		Type:         string(ev.Dialog.Type()),
		Message:      ev.Dialog.Message(),
		DefaultValue: ev.Dialog.DefaultValue(),
	})
}

func (h *pageHandler) dispose() {
	h.mu.Lock()
	h.disposed = true
	stop := h.stopDialogs
	h.stopDialogs = nil
	h.dialogs = nil
	h.dialogIDs = nil
	h.mu.Unlock()

	if stop != nil {
		stop()
	}
	if h.ts.isEnabled(protocol.DomainPage) {
		if err := h.ts.bridge.Notify("Page.disable", nil); err != nil {
			h.ts.logger.Debug("Content did not take Page.disable", zap.Error(err))
		}
	}
}
