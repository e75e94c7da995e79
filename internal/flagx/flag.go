// Package flagx contains small helpers for command-line flag handling
// shared by the client and server config loaders.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs returns only the allowed flags (and their values) from args.
// Both "-f value" and "-f=value" forms are supported. Components parse
// their own flag subsets, so unknown flags must not abort parsing.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := arg[:strings.Index(arg, "=")]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// JsonConfigFlags resolves the JSON config file path from -c/-config flags,
// or returns "" when not provided.
func JsonConfigFlags() string {
	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("jsonconfig", flag.ContinueOnError)
	short := fs.String("c", "", "path to JSON config file")
	long := fs.String("config", "", "path to JSON config file")
	if err := fs.Parse(args); err != nil {
		return ""
	}

	if *long != "" {
		return *long
	}
	return *short
}
