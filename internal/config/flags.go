package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the remote sync endpoint
//	-d string   path to the local database
//	-i int      sync interval in seconds
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.Sync.Endpoint, "a", cfg.Sync.Endpoint, "base URL of the remote sync endpoint")
	fs.StringVar(&cfg.Storage.DSN, "d", cfg.Storage.DSN, "path to the local database")
	syncInterval := fs.Int("i", int(cfg.Sync.Interval.Seconds()), "sync interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.Sync.Interval = time.Duration(*syncInterval) * time.Second
}
