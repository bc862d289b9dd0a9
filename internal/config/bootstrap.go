package config

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// bootstrapProvider describes one static, env-configured backend and the
// ProviderType/ProviderParams it maps onto. Order here becomes the
// deterministic snapshot order C4 walks.
type bootstrapProvider struct {
	key      string
	typ      ProviderType
	cfg      ProviderConfig
	weight   int
	params   map[string]string
}

// BuildBootstrapSnapshot constructs the first Snapshot straight from the
// ambient env/YAML settings already loaded into Config, so the gateway has
// a usable snapshot before any admin publish ever happens. Every configured
// backend becomes one enabled Provider with a wildcard model mapping
// (client model name passed through unchanged). If DBURL is set, this
// snapshot is replaced wholesale by the one LoadSnapshotFromClickHouse
// builds from ClickHouse-backed Provider/Credential rows.
func BuildBootstrapSnapshot(cfg *Config) *Snapshot {
	candidates := []bootstrapProvider{
		{key: "openai", typ: ProviderOpenAI, cfg: cfg.OpenAI, weight: 10},
		{key: "anthropic", typ: ProviderAnthropic, cfg: cfg.Anthropic, weight: 10},
		{key: "gemini", typ: ProviderGemini, cfg: cfg.Gemini, weight: 10},
		{key: "mistral", typ: ProviderMistral, cfg: cfg.Mistral, weight: 10},
		{
			key: "vertexai", typ: ProviderVertexAI, weight: 10,
			cfg:    ProviderConfig{APIKey: "adc"}, // Vertex AI auths via ADC, not an API key
			params: map[string]string{"project": cfg.VertexAI.Project, "location": cfg.VertexAI.Location},
		},
		{
			key: "azure", typ: ProviderAzure, weight: 10,
			cfg: ProviderConfig{APIKey: cfg.Azure.APIKey, BaseURL: cfg.Azure.Endpoint},
			params: map[string]string{"api_version": cfg.Azure.APIVersion},
		},
		{
			key: "bedrock", typ: ProviderBedrock, weight: 10,
			cfg: ProviderConfig{APIKey: cfg.Bedrock.AccessKey},
			params: map[string]string{
				"access_key":   cfg.Bedrock.AccessKey,
				"secret_key":   cfg.Bedrock.SecretKey,
				"session_token": cfg.Bedrock.SessionToken,
				"region":       cfg.Bedrock.Region,
				"endpoint_url": cfg.Bedrock.EndpointURL,
			},
		},
	}

	var id int64
	providers := make([]*Provider, 0, len(candidates))
	for _, c := range candidates {
		if !providerConfigured(c) {
			continue
		}
		id++
		providers = append(providers, &Provider{
			ID:      id,
			Key:     c.key,
			Type:    c.typ,
			APIBase: c.cfg.BaseURL,
			APIKey:  c.cfg.APIKey,
			ModelMapping: []ModelMapping{
				{ClientModel: "*", ProviderModel: "*"},
			},
			IsEnabled:      true,
			ProviderParams: c.params,
			Weight:         c.weight,
		})
	}

	var credentials []*Credential
	if cfg.AllowClientAPIKeys {
		// When client-forwarded keys are allowed there is no fixed
		// credential set to enumerate, so the bootstrap snapshot carries
		// no credential rows. C2 has no pass-through mode: until
		// credentials are published, every /v2/* request is rejected as
		// unauthorized. Client keys are forwarded only on the legacy
		// /v1/* path.
	} else if cfg.AdminKey != "" {
		credentials = append(credentials, &Credential{
			ID:            1,
			Name:          "bootstrap-admin",
			HashedKey:     hashKey(cfg.AdminKey),
			Preview:       preview(cfg.AdminKey),
			AllowedModels: []string{"*"},
			IsEnabled:     true,
		})
	}

	return NewSnapshot(1, time.Now(), providers, credentials)
}

func providerConfigured(c bootstrapProvider) bool {
	switch c.typ {
	case ProviderVertexAI:
		return c.params["project"] != ""
	case ProviderBedrock:
		return c.params["access_key"] != "" && c.params["secret_key"] != ""
	default:
		return c.cfg.APIKey != ""
	}
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func preview(raw string) string {
	if len(raw) <= 4 {
		return raw
	}
	return raw[len(raw)-4:]
}
