package local

import (
	"context"

	"spendly/internal/core"
	"spendly/internal/identity"
)

type listener struct {
	uid   string
	dirty chan struct{}
	stop  chan struct{}
}

// OnAuthStateChanged delivers the user behind token on its own goroutine,
// then again after every change to that account or its sessions.
func (p *Provider) OnAuthStateChanged(token string, fn func(*core.User)) identity.Unsubscribe {
	l := &listener{
		dirty: make(chan struct{}, 1),
		stop:  make(chan struct{}),
	}
	if claims, err := p.parseToken(token); err == nil {
		l.uid = claims.Subject
	}
	l.dirty <- struct{}{}

	p.listenMu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = l
	p.listenMu.Unlock()

	var stopped bool
	unsubscribe := func() {
		p.listenMu.Lock()
		defer p.listenMu.Unlock()
		if stopped {
			return
		}
		stopped = true
		delete(p.listeners, id)
		close(l.stop)
	}

	go func() {
		for {
			select {
			case <-l.stop:
				return
			case <-l.dirty:
			}
			u, err := p.CurrentUser(context.Background(), token)
			if err != nil {
				u = nil
			}
			select {
			case <-l.stop:
				return
			default:
			}
			fn(u)
		}
	}()

	return identity.Unsubscribe(unsubscribe)
}

func (p *Provider) notify(uid string) {
	p.listenMu.Lock()
	defer p.listenMu.Unlock()
	for _, l := range p.listeners {
		if l.uid != uid {
			continue
		}
		select {
		case l.dirty <- struct{}{}:
		default:
		}
	}
}
