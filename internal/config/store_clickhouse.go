package config

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// LoadSnapshotFromClickHouse reads the out-of-scope admin store's
// gateway_providers and gateway_credentials tables and builds a Snapshot
// from them, versioned one past prev (or 1 if prev is nil). It is the read
// side of the admin publish boundary: the admin CRUD API this repo does not
// implement would write these tables and then call Store.Publish with the
// result of a call like this one.
//
// Schema (DDL owned by the admin subsystem, not this package):
//
//	gateway_providers(id, key, type, api_base, api_key, model_mapping_json,
//	  is_enabled, provider_params_json, custom_headers_json, weight)
//	gateway_credentials(id, name, hashed_key, preview, allowed_models_json,
//	  rps_limit, burst, is_enabled)
func LoadSnapshotFromClickHouse(ctx context.Context, dsn string, prev *Snapshot) (*Snapshot, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("config: parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("config: open clickhouse: %w", err)
	}
	defer conn.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("config: ping clickhouse: %w", err)
	}

	providers, err := loadProviders(ctx, conn)
	if err != nil {
		return nil, err
	}
	credentials, err := loadCredentials(ctx, conn)
	if err != nil {
		return nil, err
	}

	version := int64(1)
	if prev != nil {
		version = prev.Version + 1
	}
	return NewSnapshot(version, time.Now(), providers, credentials), nil
}

func loadProviders(ctx context.Context, conn clickhouse.Conn) ([]*Provider, error) {
	rows, err := conn.Query(ctx, `
		SELECT id, key, type, api_base, api_key, model_mapping_json,
		       is_enabled, provider_params_json, custom_headers_json, weight
		FROM gateway_providers
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("config: query gateway_providers: %w", err)
	}
	defer rows.Close()

	var out []*Provider
	for rows.Next() {
		var (
			id                                                          int64
			key, typ, apiBase, apiKey                                   string
			modelMappingJSON, providerParamsJSON, customHeadersJSON     string
			isEnabled                                                   bool
			weight                                                      int32
		)
		if err := rows.Scan(&id, &key, &typ, &apiBase, &apiKey, &modelMappingJSON,
			&isEnabled, &providerParamsJSON, &customHeadersJSON, &weight); err != nil {
			return nil, fmt.Errorf("config: scan gateway_providers row: %w", err)
		}
		mapping, err := decodeModelMapping(modelMappingJSON)
		if err != nil {
			return nil, fmt.Errorf("config: provider %s model_mapping_json: %w", key, err)
		}
		params, err := decodeStringMap(providerParamsJSON)
		if err != nil {
			return nil, fmt.Errorf("config: provider %s provider_params_json: %w", key, err)
		}
		headers, err := decodeStringMap(customHeadersJSON)
		if err != nil {
			return nil, fmt.Errorf("config: provider %s custom_headers_json: %w", key, err)
		}
		out = append(out, &Provider{
			ID:             id,
			Key:            key,
			Type:           ProviderType(typ),
			APIBase:        apiBase,
			APIKey:         apiKey,
			ModelMapping:   mapping,
			IsEnabled:      isEnabled,
			ProviderParams: params,
			CustomHeaders:  headers,
			Weight:         int(weight),
		})
	}
	return out, rows.Err()
}

func loadCredentials(ctx context.Context, conn clickhouse.Conn) ([]*Credential, error) {
	rows, err := conn.Query(ctx, `
		SELECT id, name, hashed_key, preview, allowed_models_json,
		       rps_limit, burst, is_enabled
		FROM gateway_credentials
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("config: query gateway_credentials: %w", err)
	}
	defer rows.Close()

	var out []*Credential
	for rows.Next() {
		var (
			id                              int64
			name, hashedKey, preview        string
			allowedModelsJSON               string
			rpsLimit, burst                 int32
			isEnabled                       bool
		)
		if err := rows.Scan(&id, &name, &hashedKey, &preview, &allowedModelsJSON,
			&rpsLimit, &burst, &isEnabled); err != nil {
			return nil, fmt.Errorf("config: scan gateway_credentials row: %w", err)
		}
		allowed, err := decodeStringSlice(allowedModelsJSON)
		if err != nil {
			return nil, fmt.Errorf("config: credential %s allowed_models_json: %w", name, err)
		}
		var rl *RateLimit
		if rpsLimit > 0 {
			rl = &RateLimit{RequestsPerSecond: int(rpsLimit), Burst: int(burst)}
		}
		out = append(out, &Credential{
			ID:            id,
			Name:          name,
			HashedKey:     hashedKey,
			Preview:       preview,
			AllowedModels: allowed,
			RateLimit:     rl,
			IsEnabled:     isEnabled,
		})
	}
	return out, rows.Err()
}
