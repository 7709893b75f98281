// Package proxy provides a fixed pool of sticky proxy endpoints. A logical
// session is bound to one endpoint for its lifetime and never migrates
// mid-run.
package proxy

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"
)

// Endpoint is one proxy in the pool, parsed from a host:port:user:pass
// descriptor.
type Endpoint struct {
	Host     string
	Port     string
	Username string
	Password string

	session string
}

// ParseEndpoint parses a host:port:username:password descriptor.
func ParseEndpoint(descriptor string) (*Endpoint, error) {
	parts := strings.SplitN(descriptor, ":", 4)
	if len(parts) != 4 {
		return nil, fmt.Errorf("proxy descriptor %q must have host:port:username:password", redact(descriptor))
	}
	for i, name := range []string{"host", "port", "username", "password"} {
		if parts[i] == "" {
			return nil, fmt.Errorf("proxy descriptor %q has empty %s", redact(descriptor), name)
		}
	}
	return &Endpoint{
		Host:     parts[0],
		Port:     parts[1],
		Username: parts[2],
		Password: parts[3],
		session:  sessionToken(parts[2]),
	}, nil
}

// Addr returns the host:port address of the endpoint.
func (e *Endpoint) Addr() string {
	return e.Host + ":" + e.Port
}

// URL returns the authenticated proxy URL used for HTTP transport.
func (e *Endpoint) URL() *url.URL {
	return &url.URL{
		Scheme: "http",
		User:   url.UserPassword(e.Username, e.Password),
		Host:   e.Addr(),
	}
}

// Session returns the sticky session token embedded in the proxy username,
// or an empty string if the provider format carries none.
func (e *Endpoint) Session() string {
	return e.session
}

// sessionToken extracts the provider's session token from usernames of the
// form "...-session-<token>-...".
func sessionToken(username string) string {
	const marker = "-session-"
	idx := strings.Index(username, marker)
	if idx < 0 {
		return ""
	}
	rest := username[idx+len(marker):]
	if end := strings.IndexByte(rest, '-'); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

func redact(descriptor string) string {
	parts := strings.SplitN(descriptor, ":", 4)
	if len(parts) < 2 {
		return descriptor
	}
	return parts[0] + ":" + parts[1] + ":***"
}

// Pool holds a fixed collection of endpoints and maps session identifiers to
// them deterministically.
type Pool struct {
	endpoints []*Endpoint
	labels    map[string]int
}

// NewPool parses the configured descriptors into a pool. An empty descriptor
// list is a configuration error.
func NewPool(descriptors []string) (*Pool, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("proxy pool cannot be empty")
	}

	pool := &Pool{labels: make(map[string]int, len(descriptors))}
	for i, descriptor := range descriptors {
		endpoint, err := ParseEndpoint(descriptor)
		if err != nil {
			return nil, err
		}
		pool.endpoints = append(pool.endpoints, endpoint)
		pool.labels[pool.labelFor(endpoint, i)] = i
	}
	return pool, nil
}

func (p *Pool) labelFor(endpoint *Endpoint, index int) string {
	if token := endpoint.Session(); token != "" {
		return token
	}
	return fmt.Sprintf("slot-%d", index)
}

// Acquire maps a session identifier to an endpoint. The same identifier
// always returns the same endpoint: canonical session labels resolve by
// exact match, everything else by a stable hash modulo pool size.
func (p *Pool) Acquire(sessionID string) (*Endpoint, error) {
	if len(p.endpoints) == 0 {
		return nil, fmt.Errorf("proxy pool cannot service session %q: no endpoints", sessionID)
	}
	if idx, ok := p.labels[sessionID]; ok {
		return p.endpoints[idx], nil
	}
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return p.endpoints[int(h.Sum32())%len(p.endpoints)], nil
}

// Sessions returns one canonical session label per endpoint, in pool order.
// Acquire on each label is guaranteed to return the matching endpoint, so
// every endpoint is reachable.
func (p *Pool) Sessions() []string {
	out := make([]string, len(p.endpoints))
	for i, endpoint := range p.endpoints {
		out[i] = p.labelFor(endpoint, i)
	}
	return out
}

// Endpoints returns the pool contents in configuration order.
func (p *Pool) Endpoints() []*Endpoint {
	return p.endpoints
}

// Size returns the number of endpoints in the pool.
func (p *Pool) Size() int {
	return len(p.endpoints)
}
