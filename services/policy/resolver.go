// Package policy decides which provider serves a request and in what order
// the remaining providers may be tried.
package policy

import (
	"strings"

	"github.com/mozaika228/hephaestus/config"
	"github.com/mozaika228/hephaestus/services/intent"
	"github.com/mozaika228/hephaestus/services/providers"
)

// Reason codes attached to a Policy
const (
	ReasonRequestedAvailable          = "requested_provider_available"
	ReasonConfiguredAvailable         = "configured_provider_available"
	ReasonRequestedUnavailableUseConf = "requested_provider_unavailable_use_configured"
	ReasonIntentPolicy                = "intent_policy_selected"
	ReasonNoProvider                  = "no_provider_available"
)

// Policy is the provider selection for one request. It is never mutated
// after Resolve returns.
type Policy struct {
	Selected      providers.ID   `json:"provider"`
	FallbackOrder []providers.ID `json:"fallbackProviders"`
	Available     []providers.ID `json:"availableProviders"`
	Reason        string         `json:"reason"`
}

// HasProvider reports whether at least one provider is configured. Selected
// must not be used for a live request when this is false.
func (p Policy) HasProvider() bool {
	return len(p.Available) > 0
}

// Candidates returns Selected followed by FallbackOrder
func (p Policy) Candidates() []providers.ID {
	if !p.HasProvider() {
		return nil
	}
	out := make([]providers.ID, 0, 1+len(p.FallbackOrder))
	out = append(out, p.Selected)
	return append(out, p.FallbackOrder...)
}

var preferences = map[intent.Intent][]providers.ID{
	intent.Chat:                 {providers.OpenAI, providers.Azure, providers.Local, providers.Custom},
	intent.Code:                 {providers.OpenAI, providers.Azure, providers.Local, providers.Custom},
	intent.Planner:              {providers.OpenAI, providers.Azure, providers.Local, providers.Custom},
	intent.Integration:          {providers.Custom, providers.OpenAI, providers.Azure, providers.Local},
	intent.FileAnalysis:         {providers.OpenAI, providers.Azure, providers.Custom, providers.Local},
	intent.FileAnalysisImage:    {providers.OpenAI, providers.Azure, providers.Custom, providers.Local},
	intent.FileAnalysisDocument: {providers.OpenAI, providers.Azure, providers.Custom, providers.Local},
	intent.FileAnalysisAudio:    {providers.OpenAI, providers.Azure},
	intent.FileAnalysisVideo:    {providers.OpenAI, providers.Azure, providers.Custom},
}

// Preferences returns the provider preference list for an intent. Unknown
// intents use the chat list.
func Preferences(in intent.Intent) []providers.ID {
	if list, ok := preferences[in]; ok {
		return list
	}
	return preferences[intent.Chat]
}

// AvailableProviders lists the providers whose required settings are all
// present, in the fixed order openai, azure, local, custom
func AvailableProviders(cfg config.ProvidersConfig) []providers.ID {
	var out []providers.ID
	if cfg.OpenAIConfigured() {
		out = append(out, providers.OpenAI)
	}
	if cfg.AzureConfigured() {
		out = append(out, providers.Azure)
	}
	if cfg.LocalConfigured() {
		out = append(out, providers.Local)
	}
	if cfg.CustomConfigured() {
		out = append(out, providers.Custom)
	}
	return out
}

// Resolve picks the provider for a request. The first matching rule wins:
// an available requested provider, then an available configured provider,
// then the intent's preference list. With nothing available the configured
// provider is returned for display only.
func Resolve(available []providers.ID, in intent.Intent, requested, configured string) Policy {
	req := providers.ID(strings.ToLower(strings.TrimSpace(requested)))
	conf := providers.ID(strings.ToLower(strings.TrimSpace(configured)))
	if conf == "" {
		conf = providers.OpenAI
	}

	if _, known := providers.ParseID(string(req)); known && contains(available, req) {
		return build(available, req, ReasonRequestedAvailable)
	}

	if contains(available, conf) {
		reason := ReasonConfiguredAvailable
		if req != "" {
			reason = ReasonRequestedUnavailableUseConf
		}
		return build(available, conf, reason)
	}

	for _, id := range Preferences(in) {
		if contains(available, id) {
			return build(available, id, ReasonIntentPolicy)
		}
	}

	return Policy{
		Selected:      conf,
		FallbackOrder: []providers.ID{},
		Available:     []providers.ID{},
		Reason:        ReasonNoProvider,
	}
}

func build(available []providers.ID, selected providers.ID, reason string) Policy {
	fallback := make([]providers.ID, 0, len(available))
	for _, id := range available {
		if id != selected {
			fallback = append(fallback, id)
		}
	}
	return Policy{
		Selected:      selected,
		FallbackOrder: fallback,
		Available:     append([]providers.ID(nil), available...),
		Reason:        reason,
	}
}

func contains(list []providers.ID, id providers.ID) bool {
	for _, candidate := range list {
		if candidate == id {
			return true
		}
	}
	return false
}
