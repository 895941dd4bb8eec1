// Package llm routes completion requests across providers with fallback and
// provides the batch client used to amortize per-call cost.
package llm

import "sync"

// ProviderState tracks one-way provider degradations for the lifetime of a
// run. It is constructed once and injected into every component that makes
// provider decisions; there are no package-level globals, so tests and
// concurrent runs stay isolated.
type ProviderState struct {
	mu                 sync.Mutex
	searchUsesFallback bool
	llmPrimaryDead     bool
}

// NewProviderState returns a state with all providers healthy.
func NewProviderState() *ProviderState {
	return &ProviderState{}
}

// SearchUsesFallback reports whether paid search has been permanently
// abandoned for this process.
func (s *ProviderState) SearchUsesFallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchUsesFallback
}

// MarkSearchFallback permanently switches search to the free provider.
// The transition is one-way; there is no reset.
func (s *ProviderState) MarkSearchFallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchUsesFallback = true
}

// LLMPrimaryDead reports whether the primary LLM provider has been marked
// permanently unavailable (billing failures).
func (s *ProviderState) LLMPrimaryDead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.llmPrimaryDead
}

// MarkLLMPrimaryDead permanently retires the primary LLM provider.
func (s *ProviderState) MarkLLMPrimaryDead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.llmPrimaryDead = true
}
