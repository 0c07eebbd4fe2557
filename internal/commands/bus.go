package commands

import (
	"context"
	"sync"
)

// Bus dispatches commands to registered handlers. Every command is
// validated and passed through the proxy chain before its handler runs.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	proxies  *ProxyChain
}

func NewBus(proxies ...Proxy) *Bus {
	return &Bus{
		handlers: make(map[string]Handler),
		proxies:  NewProxyChain(proxies...),
	}
}

func (b *Bus) Register(commandType string, handler Handler) {
	b.mu.Lock()
	b.handlers[commandType] = handler
	b.mu.Unlock()
}

func (b *Bus) Has(commandType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.handlers[commandType]
	return ok
}

func (b *Bus) Execute(ctx context.Context, cmd Command) (Result, error) {
	b.mu.RLock()
	h, ok := b.handlers[cmd.CommandType()]
	b.mu.RUnlock()
	if !ok {
		return Result{}, ErrHandlerNotFound
	}
	if err := cmd.Validate(); err != nil {
		return Result{}, err
	}
	if err := b.proxies.Authorize(ctx, cmd); err != nil {
		return Result{}, err
	}
	return h.Handle(ctx, cmd)
}
