package config

// Config holds runtime settings for the uploader CLI.
//
// Fields:
//   - ServerURL: base URL of the upload API.
//   - Token: bearer token for the API.
//   - PartSize: upload chunk size in bytes. The server may advertise a
//     different size on init; the advertised size wins.
//   - Concurrency: number of parts uploaded in parallel.
type Config struct {
	ServerURL   string
	Token       string
	PartSize    int64
	Concurrency int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.Token = ""
	c.PartSize = 8 << 20
	c.Concurrency = 4
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
