package config

import (
	"encoding/json"
	"os"

	"github.com/devchaudhary24k/vidcastx/internal/flagx"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It is an intermediate DTO used only for reading JSON
// configuration files; its fields are copied into the runtime Config.
type JsonConfig struct {
	ServerURL   string `json:"server_url"`
	Token       string `json:"token"`
	PartSizeMiB int64  `json:"part_size_mib"`
	Concurrency int    `json:"concurrency"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; if neither is set, no JSON file is loaded. If the file cannot be
// read or contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

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

	config.ServerURL = c.ServerURL
	config.Token = c.Token
	config.PartSize = c.PartSizeMiB << 20
	config.Concurrency = c.Concurrency
}
