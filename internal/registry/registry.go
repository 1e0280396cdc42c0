// Package registry holds the static catalog of backend descriptors. The
// catalog is read-mostly: descriptors are created at initialization and
// mutated only by enable/disable or a configuration reload.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mindnote/mindroute/internal/models"
)

// Credentials maps a provider family name to its API key.
type Credentials map[string]string

// credentialRule is the minimal format check applied per provider family
// before first use. Families absent from the table need no credential.
type credentialRule struct {
	prefix    string
	minLength int
}

var credentialRules = map[string]credentialRule{
	"openai":    {prefix: "sk-", minLength: 20},
	"anthropic": {prefix: "sk-ant-", minLength: 24},
	"qwen":      {prefix: "sk-", minLength: 16},
}

// ValidateCredential checks the credential format for a provider family.
// A missing or malformed credential is a configuration error, never
// silently ignored.
func ValidateCredential(provider, key string) error {
	rule, required := credentialRules[provider]
	if !required {
		return nil
	}
	if key == "" {
		return models.NewConfigurationError(fmt.Sprintf("missing credential for provider %q", provider), nil)
	}
	if !strings.HasPrefix(key, rule.prefix) {
		return models.NewConfigurationError(
			fmt.Sprintf("credential for provider %q must start with %q", provider, rule.prefix), nil)
	}
	if len(key) < rule.minLength {
		return models.NewConfigurationError(
			fmt.Sprintf("credential for provider %q is shorter than %d characters", provider, rule.minLength), nil)
	}
	return nil
}

// Registry is an in-memory, ordered catalog of service descriptors keyed by
// provider/model. List preserves registration order, which the candidate
// selector relies on.
type Registry struct {
	mu          sync.RWMutex
	order       []string
	descriptors map[string]models.ServiceDescriptor
}

// New builds a registry from the given descriptors, validating the
// credential of every enabled descriptor's provider family. Duplicate keys
// are a configuration error.
func New(descs []models.ServiceDescriptor, creds Credentials) (*Registry, error) {
	r := &Registry{
		descriptors: make(map[string]models.ServiceDescriptor, len(descs)),
	}
	for _, d := range descs {
		key := d.Key()
		if d.Provider == "" || d.Model == "" {
			return nil, models.NewConfigurationError(fmt.Sprintf("descriptor %q has empty provider or model", key), nil)
		}
		if _, dup := r.descriptors[key]; dup {
			return nil, models.NewConfigurationError(fmt.Sprintf("duplicate descriptor %q", key), nil)
		}
		if d.Enabled {
			if err := ValidateCredential(d.Provider, creds[d.Provider]); err != nil {
				return nil, err
			}
		}
		r.order = append(r.order, key)
		r.descriptors[key] = d
	}
	return r, nil
}

// Reload replaces the catalog with a new descriptor set, applying the same
// validation as New. On error the existing catalog is left untouched.
func (r *Registry) Reload(descs []models.ServiceDescriptor, creds Credentials) error {
	next, err := New(descs, creds)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = next.order
	r.descriptors = next.descriptors
	return nil
}

// List returns all descriptors in registration order.
func (r *Registry) List() []models.ServiceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ServiceDescriptor, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.descriptors[key])
	}
	return out
}

// Get returns the descriptor for a key.
func (r *Registry) Get(key string) (models.ServiceDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[key]
	return d, ok
}

// Enable marks a descriptor as eligible for selection.
func (r *Registry) Enable(key string) error {
	return r.setEnabled(key, true)
}

// Disable removes a descriptor from selection without deleting it.
func (r *Registry) Disable(key string) error {
	return r.setEnabled(key, false)
}

func (r *Registry) setEnabled(key string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.descriptors[key]
	if !ok {
		return fmt.Errorf("backend %q not registered", key)
	}
	d.Enabled = enabled
	r.descriptors[key] = d
	return nil
}

// Providers returns the distinct provider family names in registration
// order, used to wire adapters and health probes.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, key := range r.order {
		p := r.descriptors[key].Provider
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
