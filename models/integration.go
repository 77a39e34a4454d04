package models

// Integration statuses
const (
	IntegrationInactive = "inactive"
	IntegrationPending  = "pending"
)

// Integration is an entry of the third-party connector catalog
type Integration struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// DefaultIntegrations returns a fresh copy of the built-in catalog
func DefaultIntegrations() []Integration {
	return []Integration{
		{ID: "slack", Name: "Slack", Status: IntegrationInactive},
		{ID: "notion", Name: "Notion", Status: IntegrationInactive},
		{ID: "google", Name: "Google Workspace", Status: IntegrationInactive},
	}
}
