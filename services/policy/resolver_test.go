package policy

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/mozaika228/hephaestus/config"
	"github.com/mozaika228/hephaestus/services/intent"
	"github.com/mozaika228/hephaestus/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAvailableProviders(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ProvidersConfig
		want []providers.ID
	}{
		{
			name: "nothing configured",
			cfg:  config.ProvidersConfig{},
			want: nil,
		},
		{
			name: "openai key only",
			cfg:  config.ProvidersConfig{OpenAI: config.OpenAIConfig{APIKey: "sk"}},
			want: []providers.ID{providers.OpenAI},
		},
		{
			name: "azure needs deployment",
			cfg:  config.ProvidersConfig{Azure: config.AzureConfig{APIKey: "k", Endpoint: "https://x"}},
			want: nil,
		},
		{
			name: "all four in fixed order",
			cfg: config.ProvidersConfig{
				Custom: config.CustomConfig{Endpoint: "http://custom"},
				Local:  config.LocalConfig{Endpoint: "http://local"},
				Azure:  config.AzureConfig{APIKey: "k", Endpoint: "https://x", Deployment: "d"},
				OpenAI: config.OpenAIConfig{APIKey: "sk"},
			},
			want: []providers.ID{providers.OpenAI, providers.Azure, providers.Local, providers.Custom},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AvailableProviders(tt.cfg))
		})
	}
}

func TestResolve(t *testing.T) {
	all := []providers.ID{providers.OpenAI, providers.Azure, providers.Local, providers.Custom}

	tests := []struct {
		name       string
		available  []providers.ID
		intent     intent.Intent
		requested  string
		configured string
		want       Policy
	}{
		{
			name:       "requested available",
			available:  all,
			intent:     intent.Chat,
			requested:  "Azure",
			configured: "openai",
			want: Policy{
				Selected:      providers.Azure,
				FallbackOrder: []providers.ID{providers.OpenAI, providers.Local, providers.Custom},
				Available:     all,
				Reason:        ReasonRequestedAvailable,
			},
		},
		{
			name:       "configured available without request",
			available:  all,
			intent:     intent.Integration,
			configured: "local",
			want: Policy{
				Selected:      providers.Local,
				FallbackOrder: []providers.ID{providers.OpenAI, providers.Azure, providers.Custom},
				Available:     all,
				Reason:        ReasonConfiguredAvailable,
			},
		},
		{
			name:       "requested unavailable falls to configured",
			available:  []providers.ID{providers.OpenAI, providers.Local},
			intent:     intent.Chat,
			requested:  "custom",
			configured: "local",
			want: Policy{
				Selected:      providers.Local,
				FallbackOrder: []providers.ID{providers.OpenAI},
				Available:     []providers.ID{providers.OpenAI, providers.Local},
				Reason:        ReasonRequestedUnavailableUseConf,
			},
		},
		{
			name:      "unknown requested id counts as a request",
			available: []providers.ID{providers.OpenAI},
			intent:    intent.Chat,
			requested: "anthropic",
			want: Policy{
				Selected:      providers.OpenAI,
				FallbackOrder: []providers.ID{},
				Available:     []providers.ID{providers.OpenAI},
				Reason:        ReasonRequestedUnavailableUseConf,
			},
		},
		{
			name:       "integration prefers custom",
			available:  []providers.ID{providers.OpenAI, providers.Custom},
			intent:     intent.Integration,
			configured: "azure",
			want: Policy{
				Selected:      providers.Custom,
				FallbackOrder: []providers.ID{providers.OpenAI},
				Available:     []providers.ID{providers.OpenAI, providers.Custom},
				Reason:        ReasonIntentPolicy,
			},
		},
		{
			name:       "video prefers custom over local",
			available:  []providers.ID{providers.Local, providers.Custom},
			intent:     intent.FileAnalysisVideo,
			configured: "openai",
			want: Policy{
				Selected:      providers.Custom,
				FallbackOrder: []providers.ID{providers.Local},
				Available:     []providers.ID{providers.Local, providers.Custom},
				Reason:        ReasonIntentPolicy,
			},
		},
		{
			name:       "audio has no local option",
			available:  []providers.ID{providers.Local},
			intent:     intent.FileAnalysisAudio,
			configured: "openai",
			want: Policy{
				Selected:      providers.OpenAI,
				FallbackOrder: []providers.ID{},
				Available:     []providers.ID{},
				Reason:        ReasonNoProvider,
			},
		},
		{
			name:       "unknown intent uses chat list",
			available:  []providers.ID{providers.Custom, providers.Local},
			intent:     intent.Intent("weather"),
			configured: "openai",
			want: Policy{
				Selected:      providers.Local,
				FallbackOrder: []providers.ID{providers.Custom},
				Available:     []providers.ID{providers.Custom, providers.Local},
				Reason:        ReasonIntentPolicy,
			},
		},
		{
			name:      "nothing available keeps default for display",
			available: nil,
			intent:    intent.Chat,
			want: Policy{
				Selected:      providers.OpenAI,
				FallbackOrder: []providers.ID{},
				Available:     []providers.ID{},
				Reason:        ReasonNoProvider,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.available, tt.intent, tt.requested, tt.configured)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicy_Candidates(t *testing.T) {
	p := Resolve([]providers.ID{providers.OpenAI, providers.Azure, providers.Local}, intent.Chat, "local", "")
	assert.True(t, p.HasProvider())
	assert.Equal(t, []providers.ID{providers.Local, providers.OpenAI, providers.Azure}, p.Candidates())

	empty := Resolve(nil, intent.Chat, "", "")
	assert.False(t, empty.HasProvider())
	assert.Nil(t, empty.Candidates())
}

func TestPolicy_JSON(t *testing.T) {
	p := Resolve([]providers.ID{providers.OpenAI, providers.Local}, intent.Chat, "", "openai")

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"provider": "openai",
		"fallbackProviders": ["local"],
		"availableProviders": ["openai", "local"],
		"reason": "configured_provider_available"
	}`, string(data))
}

func TestResolve_DoesNotAliasAvailable(t *testing.T) {
	available := []providers.ID{providers.OpenAI, providers.Azure}
	p := Resolve(available, intent.Chat, "", "")
	available[0] = providers.Custom
	assert.Equal(t, providers.OpenAI, p.Available[0])
}

// drawAvailable draws an order-preserving subset of providers.All
func drawAvailable(rt *rapid.T) []providers.ID {
	var out []providers.ID
	for _, id := range providers.All {
		if rapid.Bool().Draw(rt, "has_"+string(id)) {
			out = append(out, id)
		}
	}
	return out
}

func drawIntent(rt *rapid.T) intent.Intent {
	return rapid.SampledFrom([]intent.Intent{
		intent.Chat, intent.Code, intent.Planner, intent.Integration, intent.FileAnalysis,
		intent.FileAnalysisImage, intent.FileAnalysisAudio, intent.FileAnalysisVideo,
		intent.FileAnalysisDocument, intent.Intent("unknown"),
	}).Draw(rt, "intent")
}

func drawProviderName(rt *rapid.T, label string) string {
	return rapid.SampledFrom([]string{"", "openai", "azure", "local", "custom", "OPENAI", "bogus"}).Draw(rt, label)
}

func TestResolve_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		available := drawAvailable(rt)
		in := drawIntent(rt)
		requested := drawProviderName(rt, "requested")
		configured := drawProviderName(rt, "configured")

		got := Resolve(available, in, requested, configured)

		// deterministic
		if again := Resolve(available, in, requested, configured); !reflect.DeepEqual(got, again) {
			rt.Fatalf("non-deterministic: %+v vs %+v", got, again)
		}

		// an available requested provider always wins
		if id, known := providers.ParseID(requested); known && contains(available, id) && got.Selected != id {
			rt.Fatalf("requested %q available but selected %q", id, got.Selected)
		}

		if len(available) == 0 && got.Reason != ReasonNoProvider {
			rt.Fatalf("empty availability produced %+v", got)
		}
		if got.Reason == ReasonNoProvider {
			// audio and video lists can exclude every available provider
			if len(got.FallbackOrder) != 0 || len(got.Available) != 0 {
				rt.Fatalf("no-provider policy carries lists: %+v", got)
			}
			return
		}

		if !contains(available, got.Selected) {
			rt.Fatalf("selected %q not in %v", got.Selected, available)
		}

		// fallback is available minus selected, order preserved
		if contains(got.FallbackOrder, got.Selected) {
			rt.Fatalf("fallback %v contains selected %q", got.FallbackOrder, got.Selected)
		}
		if len(got.FallbackOrder) != len(available)-1 {
			rt.Fatalf("fallback %v is not available %v minus one", got.FallbackOrder, available)
		}
		j := 0
		for _, id := range available {
			if j < len(got.FallbackOrder) && got.FallbackOrder[j] == id {
				j++
			}
		}
		if j != len(got.FallbackOrder) {
			rt.Fatalf("fallback %v is not an ordered subset of %v", got.FallbackOrder, available)
		}
	})
}
