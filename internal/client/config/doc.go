// Package config loads runtime configuration for the vidcastx uploader CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the upload API
//	-k string   bearer token
//	-z int      part size in MiB
//	-n int      concurrent part uploads
//
// # JSON schema
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "token": "...",
//	  "part_size_mib": 8,
//	  "concurrency": 4
//	}
package config
