package network

import (
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// Observer receives every channel callback from the engine and routes it
// to the sequencers tracking the channel's tab. It watches the engine
// only while at least one sequencer is tracked.
type Observer struct {
	network engine.Network
	logger  *zap.Logger

	mu        sync.Mutex
	tracked   map[engine.TabID][]*Sequencer
	redirects map[string]string
	cancel    func()
}

// NewObserver creates an idle observer.
func NewObserver(network engine.Network, logger *zap.Logger) *Observer {
	return &Observer{
		network:   network,
		logger:    logger,
		tracked:   make(map[engine.TabID][]*Sequencer),
		redirects: make(map[string]string),
	}
}

// Track routes tab's channels to s until the returned func is called.
func (o *Observer) Track(tab engine.TabID, s *Sequencer) (untrack func()) {
	o.mu.Lock()
	if len(o.tracked) == 0 {
		o.cancel = o.network.ObserveChannels(o)
	}
	o.tracked[tab] = append(o.tracked[tab], s)
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { o.untrack(tab, s) })
	}
}

func (o *Observer) untrack(tab engine.TabID, s *Sequencer) {
	o.mu.Lock()
	defer o.mu.Unlock()

	list := o.tracked[tab]
	for i, existing := range list {
		if existing == s {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(o.tracked, tab)
	} else {
		o.tracked[tab] = list
	}

	if len(o.tracked) == 0 && o.cancel != nil {
		o.cancel()
		o.cancel = nil
		o.redirects = make(map[string]string)
	}
}

func (o *Observer) sequencers(tab engine.TabID) []*Sequencer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Sequencer(nil), o.tracked[tab]...)
}

// OnRedirect links the new channel to the one it replaces.
func (o *Observer) OnRedirect(from, to engine.Channel) {
	defer o.recover("redirect", to)
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.tracked[from.Tab()]; !ok {
		return
	}
	o.redirects[to.ID()] = from.ID()
}

// OnRequest routes a channel whose headers are final.
func (o *Observer) OnRequest(ch engine.Channel) {
	defer o.recover("request", ch)
	o.mu.Lock()
	from := o.redirects[ch.ID()]
	delete(o.redirects, ch.ID())
	o.mu.Unlock()

	for _, s := range o.sequencers(ch.Tab()) {
		s.onRequest(ch, from)
	}
}

// OnResponse routes a response.
func (o *Observer) OnResponse(ch engine.Channel, resp engine.ResponseInfo) {
	defer o.recover("response", ch)
	for _, s := range o.sequencers(ch.Tab()) {
		s.onResponse(ch, resp)
	}
}

// OnComplete routes a finished transaction.
func (o *Observer) OnComplete(ch engine.Channel) {
	defer o.recover("complete", ch)
	for _, s := range o.sequencers(ch.Tab()) {
		s.onComplete(ch)
	}
}

// OnFailure routes a failed transaction.
func (o *Observer) OnFailure(ch engine.Channel, errorCode string) {
	defer o.recover("failure", ch)
	o.mu.Lock()
	delete(o.redirects, ch.ID())
	o.mu.Unlock()
	for _, s := range o.sequencers(ch.Tab()) {
		s.onFailure(ch, errorCode)
	}
}

// recover keeps a failing callback from reaching the engine.
func (o *Observer) recover(callback string, ch engine.Channel) {
	if rec := recover(); rec != nil {
		o.logger.Warn("Network callback panicked",
			zap.String("callback", callback),
			logging.RequestID(ch.ID()),
			zap.Any("panic", rec))
	}
}
