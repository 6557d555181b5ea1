package config

import (
	"flag"
	"os"

	"github.com/devchaudhary24k/vidcastx/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the upload API (default from Config)
//	-k string   bearer token (default from Config)
//	-z int      part size in MiB (default from Config)
//	-n int      concurrent part uploads (default from Config)
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-k", "-z", "-n"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the upload API")
	fs.StringVar(&cfg.Token, "k", cfg.Token, "bearer token")

	partSizeMiB := fs.Int("z", int(cfg.PartSize>>20), "part size (in MiB)")
	fs.IntVar(&cfg.Concurrency, "n", cfg.Concurrency, "concurrent part uploads")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.PartSize = int64(*partSizeMiB) << 20
}
