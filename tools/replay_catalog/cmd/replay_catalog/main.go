package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/STJr/SRB2-sub004/tools/replay_catalog"
)

func main() {
	root := flag.String("dir", "replay", "directory containing replays")
	ext := flag.String("ext", ".lmp", "replay file extension")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	entries, err := replaycatalog.List(*root, *ext)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := replaycatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		if entry.Error != "" {
			fmt.Printf("%s\n  error: %s\n", entry.ReplayPath, entry.Error)
			continue
		}
		s := entry.Summary
		fmt.Printf("%s (%s v%#04x)\n", entry.ReplayPath, s.Kind, s.Version)
		if s.MapName != "" {
			fmt.Printf("  map: %s  player: %s  skin: %s\n", s.MapName, s.Player, s.Skin)
		}
		if s.Attack != "" && s.Attack != "none" {
			fmt.Printf("  %s: time %d  score %d  rings %d\n", s.Attack, s.Time, s.Score, s.Rings)
		}
		if !entry.ChecksumValid {
			fmt.Printf("  checksum: MISMATCH\n")
		}
	}
}
