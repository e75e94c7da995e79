package config

import (
	"flag"
	"os"
	"time"

	"github.com/okarpov/lingohist/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the sync backend
//	-f string   path of the local history database
//	-s int      sync interval in seconds
//	-i int      online check interval in seconds
//	-l int      max Levenshtein distance for merge candidates
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-f", "-s", "-i", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "base URL of the sync backend")
	fs.StringVar(&cfg.DatabasePath, "f", cfg.DatabasePath, "path of the local history database")
	syncInterval := fs.Int("s", int(cfg.SyncInterval.Seconds()), "sync interval (in seconds)")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.IntVar(&cfg.MaxLevenshteinDistance, "l", cfg.MaxLevenshteinDistance, "max Levenshtein distance for merge candidates")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
