// Package config loads runtime configuration for the TradeGate client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via -c/-config or the
//     TRADEGATE_CONFIG environment variable.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "12s"
// or integer nanoseconds:
//
//	{
//	  "registration_url": "https://broker.example/register",
//	  "success_patterns": ["/welcome", "/dashboard"],
//	  "grace_delay": "12s",
//	  "settle_delay": "800ms",
//	  "store_backend": "mongo",
//	  "mongo_uri": "mongodb://localhost:27017",
//	  "session_db_path": "tradegate.db",
//	  "api_base_url": "https://api.broker.example"
//	}
//
// Config.Automation and Config.Store project the settings consumed by the
// web automation controller and the allow-list store.
package config
