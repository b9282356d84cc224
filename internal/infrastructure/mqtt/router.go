package mqtt

import (
	"sort"
	"strings"
	"sync"
)

// router holds the client's subscriptions and resolves incoming topics to
// handlers. Paho hands every message to a single default handler, which fans
// it out to each matching subscription.
type router struct {
	mu     sync.RWMutex
	routes map[string]route
}

type route struct {
	qos     byte
	handler MessageHandler
}

func newRouter() *router {
	return &router{routes: make(map[string]route)}
}

func (r *router) add(filter string, qos byte, handler MessageHandler) {
	r.mu.Lock()
	r.routes[filter] = route{qos: qos, handler: handler}
	r.mu.Unlock()
}

func (r *router) remove(filter string) {
	r.mu.Lock()
	delete(r.routes, filter)
	r.mu.Unlock()
}

func (r *router) has(filter string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routes[filter]
	return ok
}

func (r *router) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// filters returns every filter with its QoS, for a batched resubscribe.
func (r *router) filters() map[string]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]byte, len(r.routes))
	for f, rt := range r.routes {
		out[f] = rt.qos
	}
	return out
}

// match returns the handlers whose filter matches topic, ordered by filter.
func (r *router) match(topic string) []MessageHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var filters []string
	for f := range r.routes {
		if matchFilter(f, topic) {
			filters = append(filters, f)
		}
	}
	sort.Strings(filters)

	handlers := make([]MessageHandler, 0, len(filters))
	for _, f := range filters {
		handlers = append(handlers, r.routes[f].handler)
	}
	return handlers
}

// matchFilter reports whether topic matches an MQTT subscription filter.
// "+" matches exactly one level, a trailing "#" matches the parent level and
// everything below it. Topics starting with "$" only match filters that
// name them explicitly.
func matchFilter(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if strings.HasPrefix(topic, "$") && !strings.HasPrefix(filter, "$") {
		return false
	}

	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, f := range fl {
		if f == "#" {
			return i == len(fl)-1
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
