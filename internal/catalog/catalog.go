// Package catalog resolves which model and provider credential serve a
// logical service. The catalog is read from the providers, models and
// services sections of the config file.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/marco-2806/OtimizaAds/internal/providers"
)

// ModelDescriptor is one configured model. Zero sampling parameters fall
// back to the provider defaults at resolution time.
type ModelDescriptor struct {
	ID               string  `mapstructure:"id"`
	Name             string  `mapstructure:"name"`
	ProviderID       string  `mapstructure:"provider_id"`
	ProviderModelID  string  `mapstructure:"provider_model_id"`
	Temperature      float64 `mapstructure:"temperature"`
	MaxTokens        int     `mapstructure:"max_tokens"`
	TopP             float64 `mapstructure:"top_p"`
	FrequencyPenalty float64 `mapstructure:"frequency_penalty"`
	PresencePenalty  float64 `mapstructure:"presence_penalty"`
	SystemPrompt     string  `mapstructure:"system_prompt"`
	Active           bool    `mapstructure:"active"`
}

// ProviderRecord is one configured provider account.
type ProviderRecord struct {
	ID           string        `mapstructure:"id"`
	Provider     string        `mapstructure:"provider"`
	APIKey       string        `mapstructure:"api_key"`
	Endpoint     string        `mapstructure:"endpoint"`
	Organization string        `mapstructure:"organization"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Active       bool          `mapstructure:"active"`
}

// Spec is the whole catalog: services map a service name to a model ID.
type Spec struct {
	Providers []ProviderRecord  `mapstructure:"providers"`
	Models    []ModelDescriptor `mapstructure:"models"`
	Services  map[string]string `mapstructure:"services"`
}

// Resolution is a model ready to be dispatched.
type Resolution struct {
	Model      ModelDescriptor
	Params     providers.Params
	Credential providers.Credential
}

// Resolver finds the model serving a service. ok is false when no active
// model with an active, keyed provider is configured.
type Resolver interface {
	Resolve(ctx context.Context, service string) (Resolution, bool)
}

// Static is an in-memory Resolver over a Spec. It is safe for concurrent
// use and may be swapped at runtime with Replace.
type Static struct {
	log *slog.Logger

	mu        sync.RWMutex
	providers map[string]ProviderRecord
	models    map[string]ModelDescriptor
	services  map[string]string
}

// NewStatic validates spec and indexes it.
func NewStatic(spec Spec, log *slog.Logger) (*Static, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Static{log: log}
	if err := s.Replace(spec); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace swaps the indexed catalog after validating spec.
func (s *Static) Replace(spec Spec) error {
	provs := make(map[string]ProviderRecord, len(spec.Providers))
	for _, p := range spec.Providers {
		if p.ID == "" {
			return fmt.Errorf("catalog: provider without id")
		}
		if _, dup := provs[p.ID]; dup {
			return fmt.Errorf("catalog: duplicate provider id %q", p.ID)
		}
		p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
		provs[p.ID] = p
	}

	models := make(map[string]ModelDescriptor, len(spec.Models))
	for _, m := range spec.Models {
		if m.ID == "" {
			return fmt.Errorf("catalog: model without id")
		}
		if _, dup := models[m.ID]; dup {
			return fmt.Errorf("catalog: duplicate model id %q", m.ID)
		}
		if _, ok := provs[m.ProviderID]; !ok {
			return fmt.Errorf("catalog: model %q references unknown provider %q", m.ID, m.ProviderID)
		}
		models[m.ID] = m
	}

	services := make(map[string]string, len(spec.Services))
	for svc, modelID := range spec.Services {
		services[svc] = modelID
	}

	s.mu.Lock()
	s.providers, s.models, s.services = provs, models, services
	s.mu.Unlock()
	return nil
}

func (s *Static) Resolve(ctx context.Context, service string) (Resolution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	modelID, ok := s.services[service]
	if !ok {
		s.log.DebugContext(ctx, "model_unresolved", slog.String("service", service), slog.String("reason", "no_service_mapping"))
		return Resolution{}, false
	}
	m, ok := s.models[modelID]
	if !ok || !m.Active {
		s.log.DebugContext(ctx, "model_unresolved", slog.String("service", service), slog.String("reason", "model_inactive"))
		return Resolution{}, false
	}
	p, ok := s.providers[m.ProviderID]
	if !ok || !p.Active || strings.TrimSpace(p.APIKey) == "" {
		s.log.DebugContext(ctx, "model_unresolved", slog.String("service", service), slog.String("reason", "provider_unavailable"))
		return Resolution{}, false
	}

	return Resolution{
		Model:  m,
		Params: m.params(),
		Credential: providers.Credential{
			ProviderID:   p.ID,
			Provider:     p.Provider,
			APIKey:       p.APIKey,
			Endpoint:     p.Endpoint,
			Organization: p.Organization,
			Timeout:      p.Timeout,
			Active:       p.Active,
		},
	}, true
}

// Credentials returns the active, keyed provider credentials, for health
// probing.
func (s *Static) Credentials() []providers.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]providers.Credential, 0, len(s.providers))
	for _, p := range s.providers {
		if !p.Active || strings.TrimSpace(p.APIKey) == "" {
			continue
		}
		out = append(out, providers.Credential{
			ProviderID:   p.ID,
			Provider:     p.Provider,
			APIKey:       p.APIKey,
			Endpoint:     p.Endpoint,
			Organization: p.Organization,
			Timeout:      p.Timeout,
			Active:       true,
		})
	}
	return out
}

func (m ModelDescriptor) params() providers.Params {
	p := providers.Params{
		Model:            m.ProviderModelID,
		Temperature:      m.Temperature,
		MaxTokens:        m.MaxTokens,
		TopP:             m.TopP,
		FrequencyPenalty: m.FrequencyPenalty,
		PresencePenalty:  m.PresencePenalty,
	}
	if p.Temperature <= 0 {
		p.Temperature = providers.DefaultTemperature
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = providers.DefaultMaxTokens
	}
	return p
}

// DisplayName is the name recorded in usage records.
func (m ModelDescriptor) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	if m.ProviderModelID != "" {
		return m.ProviderModelID
	}
	return m.ID
}
