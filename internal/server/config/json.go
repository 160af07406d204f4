package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tradegate/internal/flagx"
	"github.com/dmitrijs2005/tradegate/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	StoreBackend                string         `json:"store_backend"`
	MongoURI                    string         `json:"mongo_uri"`
	MongoDatabase               string         `json:"mongo_database"`
	PostgresDSN                 string         `json:"postgres_dsn"`
	WatchInterval               timex.Duration `json:"watch_interval"`
	Collection                  string         `json:"collection"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	LogLevel                    string         `json:"log_level"`
	LogFormat                   string         `json:"log_format"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file is named by -c/-config or, failing that, by TRADEGATE_CONFIG. Keys
// that are absent or empty leave the current value in place. If the file
// cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.ConfigPath(EnvConfigPath)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	for dst, v := range map[*string]string{
		&config.EndpointAddrGRPC: c.EndpointAddrGRPC,
		&config.StoreBackend:     c.StoreBackend,
		&config.MongoURI:         c.MongoURI,
		&config.MongoDatabase:    c.MongoDatabase,
		&config.PostgresDSN:      c.PostgresDSN,
		&config.Collection:       c.Collection,
		&config.SecretKey:        c.SecretKey,
		&config.LogLevel:         c.LogLevel,
		&config.LogFormat:        c.LogFormat,
	} {
		if v != "" {
			*dst = v
		}
	}
	if c.WatchInterval.Duration != 0 {
		config.WatchInterval = c.WatchInterval.Duration
	}
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
}
