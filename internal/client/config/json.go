package config

import (
	"encoding/json"
	"os"

	"github.com/okarpov/lingohist/internal/flagx"
	"github.com/okarpov/lingohist/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr     *string         `json:"server_endpoint_addr"`
	DatabasePath           *string         `json:"database_path"`
	SyncInterval           *timex.Duration `json:"sync_interval"`
	OnlineCheckInterval    *timex.Duration `json:"online_check_interval"`
	ResumeGracePeriod      *timex.Duration `json:"resume_grace_period"`
	MaxLevenshteinDistance *int            `json:"max_levenshtein_distance"`
	RecordsToScanForMerge  *int            `json:"records_to_scan_for_merge"`
}

// parseJson overlays Config with values loaded from a JSON file resolved via
// the -c/-config flags. Absent file or absent fields leave Config untouched.
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
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

	if jc.ServerEndpointAddr != nil {
		cfg.ServerEndpointAddr = *jc.ServerEndpointAddr
	}
	if jc.DatabasePath != nil {
		cfg.DatabasePath = *jc.DatabasePath
	}
	if jc.SyncInterval != nil {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.ResumeGracePeriod != nil {
		cfg.ResumeGracePeriod = jc.ResumeGracePeriod.Duration
	}
	if jc.MaxLevenshteinDistance != nil {
		cfg.MaxLevenshteinDistance = *jc.MaxLevenshteinDistance
	}
	if jc.RecordsToScanForMerge != nil {
		cfg.RecordsToScanForMerge = *jc.RecordsToScanForMerge
	}
}
