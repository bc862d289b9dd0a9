// Package upstream implements the upstream HTTP client (C6): it builds the
// concrete provider backend for a config.Provider row and dispatches a
// UIF-derived request to it, classifying whatever error comes back.
package upstream

import (
	"context"
	"fmt"
	"sync"

	"github.com/nulpointcorp/llm-gateway/internal/config"
	"github.com/nulpointcorp/llm-gateway/internal/providers"
	"github.com/nulpointcorp/llm-gateway/internal/providers/anthropic"
	"github.com/nulpointcorp/llm-gateway/internal/providers/azure"
	"github.com/nulpointcorp/llm-gateway/internal/providers/bedrock"
	"github.com/nulpointcorp/llm-gateway/internal/providers/gemini"
	"github.com/nulpointcorp/llm-gateway/internal/providers/mistral"
	"github.com/nulpointcorp/llm-gateway/internal/providers/openai"
	"github.com/nulpointcorp/llm-gateway/internal/providers/openaicompat"
	"github.com/nulpointcorp/llm-gateway/internal/providers/vertexai"
)

// Client resolves config.Provider rows to live providers.Provider
// backends, caching each backend by Provider.ID for the Client's lifetime
// (backends hold pooled HTTP clients/SDK clients that are expensive to
// recreate per request). The cache is never invalidated: a later snapshot
// whose Provider row reuses an ID gets the backend built from the first
// row seen with that ID. One Client is shared across every concurrent
// request the gateway serves, so the cache is mutex-guarded.
type Client struct {
	mu    sync.RWMutex
	cache map[int64]providers.Provider
}

func NewClient() *Client {
	return &Client{cache: make(map[int64]providers.Provider)}
}

// Backend returns the providers.Provider for p, building and caching it on
// first use. Concurrent callers resolving the same provider ID may each
// build a backend, but only one survives in the cache; backends are cheap
// enough to discard that losing that race costs nothing but the one build.
func (c *Client) Backend(ctx context.Context, p *config.Provider) (providers.Provider, error) {
	c.mu.RLock()
	b, ok := c.cache[p.ID]
	c.mu.RUnlock()
	if ok {
		return b, nil
	}

	b, err := buildBackend(ctx, p)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing, ok := c.cache[p.ID]; ok {
		b = existing
	} else {
		c.cache[p.ID] = b
	}
	c.mu.Unlock()
	return b, nil
}

func buildBackend(ctx context.Context, p *config.Provider) (providers.Provider, error) {
	switch p.Type {
	case config.ProviderOpenAI:
		opts := []openai.Option{}
		if p.APIBase != "" {
			opts = append(opts, openai.WithBaseURL(p.APIBase))
		}
		if len(p.CustomHeaders) > 0 {
			opts = append(opts, openai.WithHeaders(p.CustomHeaders))
		}
		return openai.New(p.APIKey, opts...), nil

	case config.ProviderAnthropic:
		opts := []anthropic.Option{}
		if p.APIBase != "" {
			opts = append(opts, anthropic.WithBaseURL(p.APIBase))
		}
		if len(p.CustomHeaders) > 0 {
			opts = append(opts, anthropic.WithHeaders(p.CustomHeaders))
		}
		return anthropic.New(p.APIKey, opts...), nil

	case config.ProviderGemini:
		opts := []gemini.Option{}
		if p.APIBase != "" {
			opts = append(opts, gemini.WithBaseURL(p.APIBase))
		}
		if len(p.CustomHeaders) > 0 {
			opts = append(opts, gemini.WithHeaders(p.CustomHeaders))
		}
		return gemini.New(ctx, p.APIKey, opts...)

	case config.ProviderVertexAI:
		return vertexai.New(ctx, p.ProviderParams["project"],
			vertexai.WithLocation(p.ProviderParams["location"]))

	case config.ProviderMistral:
		opts := []mistral.Option{}
		if p.APIBase != "" {
			opts = append(opts, mistral.WithBaseURL(p.APIBase))
		}
		if len(p.CustomHeaders) > 0 {
			opts = append(opts, mistral.WithHeaders(p.CustomHeaders))
		}
		return mistral.New(p.APIKey, opts...), nil

	case config.ProviderAzure:
		opts := []azure.Option{}
		if len(p.CustomHeaders) > 0 {
			opts = append(opts, azure.WithHeaders(p.CustomHeaders))
		}
		return azure.New(p.APIBase, p.APIKey, p.ProviderParams["api_version"], opts...), nil

	case config.ProviderBedrock:
		return bedrock.New(
			p.ProviderParams["access_key"],
			p.ProviderParams["secret_key"],
			p.ProviderParams["region"],
			bedrock.WithSessionToken(p.ProviderParams["session_token"]),
			bedrock.WithEndpointURL(p.ProviderParams["endpoint_url"]),
		), nil

	case config.ProviderCompatible:
		opts := []openaicompat.Option{}
		if len(p.CustomHeaders) > 0 {
			opts = append(opts, openaicompat.WithHeaders(p.CustomHeaders))
		}
		return openaicompat.New(p.Key, p.APIKey, p.APIBase, opts...), nil

	default:
		return nil, fmt.Errorf("upstream: unknown provider type %q", p.Type)
	}
}
