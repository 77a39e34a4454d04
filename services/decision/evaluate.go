package decision

import (
	"strings"

	"github.com/mozaika228/hephaestus/services/intent"
	"github.com/mozaika228/hephaestus/services/policy"
	"github.com/mozaika228/hephaestus/services/providers"
)

// Available lists the providers marked configured, in registry order
func (f ProviderFlags) Available() []providers.ID {
	var out []providers.ID
	if f.OpenAIConfigured {
		out = append(out, providers.OpenAI)
	}
	if f.AzureConfigured {
		out = append(out, providers.Azure)
	}
	if f.LocalConfigured {
		out = append(out, providers.Local)
	}
	if f.CustomConfigured {
		out = append(out, providers.Custom)
	}
	return out
}

// Evaluate answers a decision request in process using the caller's
// provider flags. Mode "file" classifies Mime; any other mode classifies
// Message and FileID.
func Evaluate(req Request) Decision {
	var route intent.Decision
	if strings.EqualFold(req.Mode, "file") {
		route = intent.ClassifyFile(req.Mime)
	} else {
		route = intent.Classify(req.Message, req.FileID)
	}
	return Decision{
		Route:  route,
		Policy: policy.Resolve(req.Providers.Available(), route.Intent, req.RequestedProvider, req.ConfiguredProvider),
		Source: SourceLocal,
	}
}
