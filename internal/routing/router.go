// Package routing selects the provider adapter for a request from the
// caller's provider hint and model name.
package routing

import (
	"strings"

	"github.com/ifinance/relay/internal/domain"
)

// Backend names the router can resolve to.
const (
	BackendGateway = "gateway"
	BackendGroq    = "groq"

	hintAuto = "auto"
)

// hintToBackend maps non-auto provider hints to backends. The gateway
// fronts the OpenAI, Anthropic, and OpenRouter model families, so those
// hints all land on it.
var hintToBackend = map[string]string{
	"openai":     BackendGateway,
	"anthropic":  BackendGateway,
	"openrouter": BackendGateway,
	"groq":       BackendGroq,
}

// groqFamilies are model-name substrings that identify Groq-served
// open-weight families.
var groqFamilies = []string{"llama", "mixtral", "gemma"}

// Router deterministically resolves a provider adapter. The fallback rule
// means resolution never fails: an unrecognized hint and an unrecognized
// model both land on the default gateway backend.
type Router struct {
	registry domain.AdapterRegistry
	fallback domain.Adapter
}

// NewRouter creates a new router. The gateway adapter must already be
// registered; it is the fallback for everything the rules don't claim.
func NewRouter(registry domain.AdapterRegistry) *Router {
	fallback, _ := registry.Get(BackendGateway)
	return &Router{
		registry: registry,
		fallback: fallback,
	}
}

// Resolve applies the selection rules in order (first match wins):
//  1. explicit non-auto provider hint the router recognizes,
//  2. model-family substring associated with a backend,
//  3. the default gateway backend.
//
// The returned model is the adapter's canonical identifier for the
// requested model.
func (r *Router) Resolve(providerHint, model string) (domain.Adapter, string) {
	adapter := r.fallback

	if name, ok := hintToBackend[strings.ToLower(providerHint)]; ok && providerHint != hintAuto {
		if hinted, found := r.registry.Get(name); found {
			adapter = hinted
		}
	} else if backend := backendForModel(model); backend != "" {
		if matched, found := r.registry.Get(backend); found {
			adapter = matched
		}
	}

	return adapter, adapter.ResolveModel(model)
}

// backendForModel returns the backend associated with the model's family
// substring, or "" when no pattern matches.
func backendForModel(model string) string {
	lower := strings.ToLower(model)
	for _, family := range groqFamilies {
		if strings.Contains(lower, family) {
			return BackendGroq
		}
	}
	return ""
}
