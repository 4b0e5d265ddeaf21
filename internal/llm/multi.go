package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// MultiClient routes each request to a provider chosen by model name.
// Models without a mapping go to the fallback.
type MultiClient struct {
	providers map[string]Client // provider name → client
	routes    map[string]string // model name → provider name
	fallback  Client
}

// NewMultiClient creates a router. fallback may be nil, in which case
// unmapped models are an error.
func NewMultiClient(fallback Client) *MultiClient {
	return &MultiClient{
		providers: make(map[string]Client),
		routes:    make(map[string]string),
		fallback:  fallback,
	}
}

// AddProvider registers a client under a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.providers[name] = client
}

// AddModel maps a model name to a registered provider.
func (m *MultiClient) AddModel(model, provider string) {
	m.routes[model] = provider
}

func (m *MultiClient) route(model string) (Client, error) {
	if provider, ok := m.routes[model]; ok {
		if c, ok := m.providers[provider]; ok {
			return c, nil
		}
		return nil, fmt.Errorf("model %q maps to unregistered provider %q", model, provider)
	}
	if m.fallback == nil {
		return nil, fmt.Errorf("no provider configured for model %q", model)
	}
	return m.fallback, nil
}

// Chat sends req to the provider for req.Model.
func (m *MultiClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	c, err := m.route(req.Model)
	if err != nil {
		return nil, err
	}
	return c.Chat(ctx, req)
}

// Ping checks every registered provider and the fallback. The error
// names each provider that failed.
func (m *MultiClient) Ping(ctx context.Context) error {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	pinged := false
	for _, name := range names {
		c := m.providers[name]
		pinged = pinged || c == m.fallback
		if err := c.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if m.fallback != nil && !pinged {
		if err := m.fallback.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("fallback: %w", err))
		}
	}
	if len(errs) == 0 && len(names) == 0 && m.fallback == nil {
		return errors.New("no providers configured")
	}
	return errors.Join(errs...)
}
