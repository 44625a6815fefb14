package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/STJr/SRB2-sub004/internal/logging"
	"github.com/STJr/SRB2-sub004/tools/replay_player"
)

func main() {
	path := flag.String("path", "", "Path to a replay file or an archive bundle directory")
	verbose := flag.Bool("v", false, "log playback diagnostics to stderr")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}
	logger := logging.L()
	if *verbose {
		var err error
		if logger, err = logging.NewWriterLogger(os.Stderr, "debug"); err != nil {
			fmt.Fprintln(os.Stderr, "logger:", err)
			os.Exit(1)
		}
	}

	reports, err := replayplayer.PlayPath(*path, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	//1.- Render the decoded tics as JSON so callers can pipe the output elsewhere.
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
}
