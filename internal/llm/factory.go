package llm

import (
	"fmt"
	"sort"

	"procure-agent/config"
)

// NewProvider builds one provider from configuration.
func NewProvider(name string, cfg *config.Config) (Provider, error) {
	pc := cfg.LLM.Providers[name]
	resolved := ProviderConfig{
		Name:     name,
		Endpoint: pc.Endpoint,
		APIKey:   pc.APIKey,
		Model:    pc.Model,
		Timeout:  pc.Timeout,
	}

	switch name {
	case config.ProviderOpenAI, config.ProviderDeepSeek:
		return NewOpenAIProvider(resolved)
	case config.ProviderSidecar:
		if resolved.Endpoint == "" {
			resolved.Endpoint = cfg.Sidecar.BaseURL
		}
		return NewSidecarProvider(resolved)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}

// Registry holds every provider that could be constructed, so a runtime
// provider switch never has to build clients on the request path.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry fails when the configured active provider lacks credentials.
// Other providers without credentials are skipped.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider)}
	for _, name := range config.Providers {
		if !cfg.HasCredentials(name) {
			continue
		}
		p, err := NewProvider(name, cfg)
		if err != nil {
			return nil, err
		}
		r.providers[name] = p
	}
	if _, ok := r.providers[cfg.LLM.Provider]; !ok {
		return nil, fmt.Errorf("%w: active provider %q is not configured", ErrMissingCredentials, cfg.LLM.Provider)
	}
	return r, nil
}

// NewStaticRegistry wraps already-built providers.
func NewStaticRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
