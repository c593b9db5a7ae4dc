package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed config.schema.json
var schemaJSON []byte

// DefaultEnvMapping maps environment variables to dotted config paths.
var DefaultEnvMapping = map[string]string{
	"LOG_LEVEL":                             "application.log_level",
	"MDDS_SERVER_ADDRESS":                   "server.address",
	"MDDS_MARKET_DATA_DIR":                  "storage.market_data_dir",
	"MDDS_PARQUET_FILE_EXTENSION":           "storage.file_extension",
	"MDDS_PARQUET_READER_RECORD_BATCH_SIZE": "storage.batch_size",
	"MDDS_CACHE_ENABLED":                    "cache.enabled",
	"MDDS_CACHE_TTL":                        "cache.ttl",
	"MDDS_RATE_LIMIT_ENABLED":               "rate_limit.enabled",
}

// LoadConfig reads the YAML file at cfgPath (skipped when cfgPath is empty),
// applies environment overrides, validates the result against the embedded
// JSON Schema and decodes it over Default().
//
// envMapping is optional; when nil DefaultEnvMapping is used.
func LoadConfig(cfgPath string, envMapping map[string]string) (*Config, error) {
	doc := make(map[string]interface{})
	if cfgPath != "" {
		yb, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		var raw interface{}
		if err := yaml.Unmarshal(yb, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
		if raw != nil {
			converted, err := toJSONCompatible(raw)
			if err != nil {
				return nil, fmt.Errorf("convert yaml->json compatible: %w", err)
			}
			m, ok := converted.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("config root must be a mapping, got %T", converted)
			}
			doc = m
		}
	}

	if envMapping == nil {
		envMapping = DefaultEnvMapping
	}
	applyEnvOverrides(doc, envMapping)

	if err := validate(doc); err != nil {
		return nil, err
	}

	// round-trip through YAML so durations like "30s" decode into time.Duration
	yb, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal merged config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(yb, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func validate(doc map[string]interface{}) error {
	jb, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal to json: %w", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewBytesLoader(jb))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var sb strings.Builder
		for _, e := range result.Errors() {
			sb.WriteString("- ")
			sb.WriteString(e.String())
			sb.WriteString("\n")
		}
		return fmt.Errorf("config validation failed:\n%s", sb.String())
	}
	return nil
}

// applyEnvOverrides reads environment variables per mapping and sets dotted-paths in cfg.
func applyEnvOverrides(cfg map[string]interface{}, mapping map[string]string) {
	for env, path := range mapping {
		v, ok := os.LookupEnv(env)
		if !ok || v == "" {
			continue
		}
		setNestedField(cfg, path, coerce(v))
	}
}

// coerce keeps env values as strings unless they clearly parse as an integer
// or a boolean, so the schema sees the intended type.
func coerce(v string) interface{} {
	if i, err := tryParseInt(v); err == nil {
		return i
	}
	if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
		return b
	}
	return v
}

// setNestedField sets value at dotted path (e.g. "monitoring.prometheus.path") creating maps as needed.
func setNestedField(m map[string]interface{}, dotted string, value interface{}) {
	parts := strings.Split(dotted, ".")
	last := len(parts) - 1
	cur := m
	for i, p := range parts {
		if i == last {
			cur[p] = value
			return
		}
		next, exists := cur[p]
		if !exists {
			nm := make(map[string]interface{})
			cur[p] = nm
			cur = nm
			continue
		}
		switch typed := next.(type) {
		case map[string]interface{}:
			cur = typed
		default:
			// overwrite non-map with map to set deeper values
			nm := make(map[string]interface{})
			cur[p] = nm
			cur = nm
		}
	}
}

// tryParseInt attempts to parse string to int; returns error on failure.
func tryParseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	// "123.0" is still an integer
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if float64(int64(f)) == f {
			return int64(f), nil
		}
	}
	return 0, fmt.Errorf("not int")
}

// toJSONCompatible converts yaml-parsed structures (with map[interface{}]interface{}) into map[string]interface{} recursively.
func toJSONCompatible(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, vv := range val {
			conv, err := toJSONCompatible(vv)
			if err != nil {
				return nil, err
			}
			m[k] = conv
		}
		return m, nil
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, vv := range val {
			ks := fmt.Sprintf("%v", k)
			conv, err := toJSONCompatible(vv)
			if err != nil {
				return nil, err
			}
			m[ks] = conv
		}
		return m, nil
	case []interface{}:
		arr := make([]interface{}, len(val))
		for i, vv := range val {
			conv, err := toJSONCompatible(vv)
			if err != nil {
				return nil, err
			}
			arr[i] = conv
		}
		return arr, nil
	default:
		return val, nil
	}
}
