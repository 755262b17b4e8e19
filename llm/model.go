package llm

import (
	"fmt"
	"sync"

	"github.com/BaSui01/skillflow/types"
)

// ModelCapabilities 模型能力声明
type ModelCapabilities struct {
	Vision      bool `json:"vision,omitempty" yaml:"vision"`
	ToolCalling bool `json:"tool_calling,omitempty" yaml:"tool_calling"`
}

// ModelInfo describes one model the engine may route to.
type ModelInfo struct {
	Name         string            `json:"name" yaml:"name"`
	Provider     string            `json:"provider,omitempty" yaml:"provider"`
	ContextLimit int               `json:"context_limit" yaml:"context_limit"`
	MaxOutput    int               `json:"max_output" yaml:"max_output"`
	Capabilities ModelCapabilities `json:"capabilities" yaml:"capabilities"`
}

// ModelRole names what a model is used for within one invocation.
type ModelRole string

const (
	ModelRoleChat            ModelRole = "chat"
	ModelRoleQueryAnalysis   ModelRole = "queryAnalysis"
	ModelRoleTitleGeneration ModelRole = "titleGeneration"
)

// ModelMap resolves a role to a model. Missing roles fall back to chat.
type ModelMap map[ModelRole]ModelInfo

// Get returns the model for role, falling back to the chat model.
func (m ModelMap) Get(role ModelRole) (ModelInfo, bool) {
	if info, ok := m[role]; ok {
		return info, true
	}
	info, ok := m[ModelRoleChat]
	return info, ok
}

// ProviderFactory creates providers for a model. It is injected into skills
// rather than reached through package state.
type ProviderFactory interface {
	ProviderFor(model ModelInfo) (Provider, error)
}

// ProviderFactoryFunc adapts a function to ProviderFactory.
type ProviderFactoryFunc func(model ModelInfo) (Provider, error)

// ProviderFor implements ProviderFactory.
func (f ProviderFactoryFunc) ProviderFor(model ModelInfo) (Provider, error) { return f(model) }

// StaticFactory hands out providers registered by name, with an optional default.
type StaticFactory struct {
	mu        sync.RWMutex
	providers map[string]Provider
	fallback  Provider
}

// NewStaticFactory creates a factory whose fallback is used for models without a provider name.
func NewStaticFactory(fallback Provider) *StaticFactory {
	return &StaticFactory{providers: make(map[string]Provider), fallback: fallback}
}

// Register binds a provider name.
func (f *StaticFactory) Register(name string, p Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[name] = p
}

// ProviderFor implements ProviderFactory.
func (f *StaticFactory) ProviderFor(model ModelInfo) (Provider, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if model.Provider != "" {
		if p, ok := f.providers[model.Provider]; ok {
			return p, nil
		}
	}
	if f.fallback != nil {
		return f.fallback, nil
	}
	return nil, types.NewError(types.ErrInvalidRequest,
		fmt.Sprintf("no provider for model %q (provider %q)", model.Name, model.Provider))
}
