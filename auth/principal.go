package auth

import "strings"

// Identity is an account the principal linked on an external provider.
type Identity struct {
	Provider   string `json:"provider"`
	ExternalID string `json:"id"`
}

// Principal is the authenticated identity for one request. It is built
// once from a verified session token and never mutated afterwards.
type Principal struct {
	ID         string
	Email      string
	Identities []Identity
	// Metadata is the server-controlled app metadata.
	Metadata map[string]any
	// UserMetadata is editable by the user and is display-only.
	UserMetadata map[string]any
}

// MetadataRole returns the "role" claim from the app metadata, or "".
func (p *Principal) MetadataRole() string {
	if p == nil || p.Metadata == nil {
		return ""
	}
	role, _ := p.Metadata["role"].(string)
	return role
}

// LinkedIdentity returns the external id linked for provider.
func (p *Principal) LinkedIdentity(provider string) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, id := range p.Identities {
		if strings.EqualFold(id.Provider, provider) && id.ExternalID != "" {
			return id.ExternalID, true
		}
	}
	return "", false
}
