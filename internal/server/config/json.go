package config

import (
	"encoding/json"
	"os"

	"github.com/okarpov/lingohist/internal/flagx"
	"github.com/okarpov/lingohist/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "24h"
// or as integer nanoseconds.
type JsonConfig struct {
	EndpointAddr                *string         `json:"endpoint_addr"`
	DatabaseDSN                 *string         `json:"database_dsn"`
	SecretKey                   *string         `json:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
}

// parseJson overlays Config with values loaded from a JSON file resolved via
// the -c/-config flags. Absent file or absent fields leave Config untouched.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.EndpointAddr != nil {
		cfg.EndpointAddr = *jc.EndpointAddr
	}
	if jc.DatabaseDSN != nil {
		cfg.DatabaseDSN = *jc.DatabaseDSN
	}
	if jc.SecretKey != nil {
		cfg.SecretKey = *jc.SecretKey
	}
	if jc.AccessTokenValidityDuration != nil {
		cfg.AccessTokenValidityDuration = jc.AccessTokenValidityDuration.Duration
	}
}
