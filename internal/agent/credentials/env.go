// Package credentials collects API credentials from the host environment so
// spawned agent processes inherit them under their canonical names.
package credentials

import (
	"os"
	"strings"
)

// knownKeys are environment variables agent CLIs commonly authenticate with.
var knownKeys = []string{
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
	"GOOGLE_CLOUD_PROJECT",
	"ANTHROPIC_API_KEY",
	"OPENAI_API_KEY",
	"GITHUB_TOKEN",
	"GITLAB_TOKEN",
	"NPM_TOKEN",
}

// EnvProvider resolves credentials from environment variables. A variable can
// be set under its canonical name or under the configured prefix, e.g.
// AGENTSOCIAL_GEMINI_API_KEY resolves to GEMINI_API_KEY.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates a provider with an optional prefix filter.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

// Get resolves one credential by canonical name. It reports false when the
// variable is set neither directly nor under the prefix.
func (p *EnvProvider) Get(key string) (string, bool) {
	if value := os.Getenv(key); value != "" {
		return value, true
	}
	if p.prefix != "" {
		if value := os.Getenv(p.prefix + key); value != "" {
			return value, true
		}
	}
	return "", false
}

// Collect returns every known credential present in the environment, keyed by
// canonical name. Prefixed variables win over direct ones so a deployment can
// scope credentials to this service without touching the global environment.
func (p *EnvProvider) Collect() map[string]string {
	creds := make(map[string]string)
	for _, key := range knownKeys {
		if value := os.Getenv(key); value != "" {
			creds[key] = value
		}
	}
	if p.prefix == "" {
		return creds
	}

	for _, entry := range os.Environ() {
		eq := strings.IndexByte(entry, '=')
		if eq <= 0 || entry[eq+1:] == "" {
			continue
		}
		name := entry[:eq]
		if !strings.HasPrefix(name, p.prefix) {
			continue
		}
		canonical := strings.TrimPrefix(name, p.prefix)
		if isCredentialName(canonical) {
			creds[canonical] = entry[eq+1:]
		}
	}
	return creds
}

// isCredentialName reports whether a variable name looks like a credential.
func isCredentialName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, "api_key") ||
		strings.HasSuffix(lower, "_token") ||
		strings.HasSuffix(lower, "_secret")
}
