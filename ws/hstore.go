package ws

import (
	"sort"
	"sync"
)

// memory handler store for local pages.
type HandlerStore struct {
	sync.RWMutex
	handlers map[string]*Handler
}

func newHandlerStore() *HandlerStore {
	return &HandlerStore{handlers: make(map[string]*Handler)}
}

func (hs *HandlerStore) get(sid string) *Handler {
	hs.RLock()
	h := hs.handlers[sid]
	hs.RUnlock()
	return h
}

func (hs *HandlerStore) del(sid string) bool {
	hs.Lock()
	defer hs.Unlock()
	if _, ok := hs.handlers[sid]; ok {
		delete(hs.handlers, sid)
		return true
	}
	return false
}

func (hs *HandlerStore) add(handler *Handler) {
	hs.Lock()
	hs.handlers[handler.session.Sid] = handler
	hs.Unlock()
}

func (hs *HandlerStore) count() int {
	hs.RLock()
	defer hs.RUnlock()
	return len(hs.handlers)
}

// beyondQuota returns the oldest handlers that exceed quota, order by creation asc.
func (hs *HandlerStore) beyondQuota(quota int) []*Handler {
	hs.RLock()
	slice := make([]*Handler, 0, len(hs.handlers))
	for _, h := range hs.handlers {
		slice = append(slice, h)
	}
	hs.RUnlock()

	n := len(slice) - quota
	if n <= 0 {
		return nil
	}

	sort.Slice(slice, func(i, j int) bool {
		return slice[i].seq < slice[j].seq
	})
	return slice[:n]
}

// close closes every handler; handlers closing on their own remove themselves meanwhile.
func (hs *HandlerStore) close() {
	hs.RLock()
	handlers := make([]*Handler, 0, len(hs.handlers))
	for _, h := range hs.handlers {
		handlers = append(handlers, h)
	}
	hs.RUnlock()

	for _, h := range handlers {
		h.close(ServerStop)
	}
}
