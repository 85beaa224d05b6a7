package catalog

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/marco-2806/OtimizaAds/internal/providers"
)

// Load decodes the providers, models and services sections of v.
// ${VAR} references in api_key and endpoint are expanded from the
// environment so keys need not live in the file.
func Load(v *viper.Viper) (Spec, error) {
	var spec Spec
	if err := v.UnmarshalKey("providers", &spec.Providers); err != nil {
		return Spec{}, fmt.Errorf("catalog: decode providers: %w", err)
	}
	if err := v.UnmarshalKey("models", &spec.Models); err != nil {
		return Spec{}, fmt.Errorf("catalog: decode models: %w", err)
	}
	if err := v.UnmarshalKey("services", &spec.Services); err != nil {
		return Spec{}, fmt.Errorf("catalog: decode services: %w", err)
	}

	for i := range spec.Providers {
		spec.Providers[i].APIKey = os.ExpandEnv(spec.Providers[i].APIKey)
		spec.Providers[i].Endpoint = os.ExpandEnv(spec.Providers[i].Endpoint)
	}
	return spec, nil
}

// EnvProvider is a provider configured only through environment variables.
type EnvProvider struct {
	Kind     string
	APIKey   string
	Endpoint string
	Model    string
}

// WithEnvDefault maps service to a model on the first keyed provider in
// envs, unless the file already maps it.
func (s Spec) WithEnvDefault(service string, envs ...EnvProvider) Spec {
	if _, ok := s.Services[service]; ok {
		return s
	}
	for _, e := range envs {
		if e.APIKey == "" || e.Kind == "" {
			continue
		}
		providerID := "env-" + e.Kind
		modelID := providerID + "-default"
		model := e.Model
		if model == "" {
			model = providers.DefaultModels[e.Kind]
		}

		out := Spec{
			Providers: append(append([]ProviderRecord(nil), s.Providers...), ProviderRecord{
				ID:       providerID,
				Provider: e.Kind,
				APIKey:   e.APIKey,
				Endpoint: e.Endpoint,
				Active:   true,
			}),
			Models: append(append([]ModelDescriptor(nil), s.Models...), ModelDescriptor{
				ID:              modelID,
				Name:            model,
				ProviderID:      providerID,
				ProviderModelID: model,
				Active:          true,
			}),
			Services: map[string]string{service: modelID},
		}
		for k, v := range s.Services {
			out.Services[k] = v
		}
		return out
	}
	return s
}
