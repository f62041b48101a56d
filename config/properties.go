package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// Tracking settings resolved as env var, then property, then default.
const (
	QueueNameEnv      = "AAL_QUEUE_NAME"
	QueueNameProperty = "aal_queue_name"
	DefaultQueueName  = "aal_outbound_request_logging_queue"

	ClientIDEnv      = "AAL_CLIENT_ID"
	ClientIDProperty = "aal.client_id"
)

// Properties is a process-local set of key/value overrides. Values can come
// from a properties file at startup and be changed at runtime.
type Properties struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewProperties creates an empty property set
func NewProperties() *Properties {
	return &Properties{values: make(map[string]string)}
}

// LoadProperties reads KEY=VALUE pairs from path. A missing file yields an
// empty property set.
func LoadProperties(path string) (*Properties, error) {
	props := NewProperties()
	if path == "" {
		return props, nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return props, nil
		}
		return nil, fmt.Errorf("failed to read properties file %s: %w", path, err)
	}

	for k, v := range values {
		props.values[k] = v
	}
	return props, nil
}

// Get returns the value for key. Empty values are reported as unset.
func (p *Properties) Get(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	v, ok := p.values[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Set stores a value for key
func (p *Properties) Set(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
}

// Delete removes key
func (p *Properties) Delete(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, key)
}

// Len returns the number of stored properties
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.values)
}

// Resolver looks up tracking settings with env-over-property-over-default
// precedence. Every call reads the current environment, so values changed at
// runtime are picked up on the next lookup.
type Resolver struct {
	props     *Properties
	lookupEnv func(string) (string, bool)
}

// NewResolver creates a Resolver backed by the process environment and props
func NewResolver(props *Properties) *Resolver {
	if props == nil {
		props = NewProperties()
	}
	return &Resolver{
		props:     props,
		lookupEnv: os.LookupEnv,
	}
}

// QueueName returns the target queue name
func (r *Resolver) QueueName() string {
	if v, ok := r.lookup(QueueNameEnv, QueueNameProperty); ok {
		return v
	}
	return DefaultQueueName
}

// ClientID returns the publishing client id, if one is configured
func (r *Resolver) ClientID() (string, bool) {
	return r.lookup(ClientIDEnv, ClientIDProperty)
}

func (r *Resolver) lookup(envKey, propKey string) (string, bool) {
	if v, ok := r.lookupEnv(envKey); ok && v != "" {
		return v, true
	}
	return r.props.Get(propKey)
}
