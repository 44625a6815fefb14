package replayplayer

import (
	"fmt"
	"os"

	"github.com/STJr/SRB2-sub004/internal/demo"
	"github.com/STJr/SRB2-sub004/internal/logging"
	"github.com/STJr/SRB2-sub004/internal/replay"
	"github.com/STJr/SRB2-sub004/internal/simulation"
)

// Tic is one decoded tic of a replay.
type Tic struct {
	Tic   int               `json:"tic"`
	Cmd   demo.Ticcmd       `json:"cmd"`
	Ghost *simulation.Frame `json:"ghost,omitempty"`
}

// Report is the tic by tic decoding of one replay.
type Report struct {
	Name    string         `json:"name"`
	Summary replay.Summary `json:"summary"`
	Synced  bool           `json:"synced"`
	// Corrections counts tics where the body left the recorded track.
	Corrections int   `json:"corrections"`
	Tics        []Tic `json:"tics"`
}

// Play decodes every complete tic of a primary recording. Ghost data, when
// present, is played through a feed and attached to the tic it belongs to.
func Play(name string, data []byte, logger *logging.Logger) (Report, error) {
	if logger == nil {
		logger = logging.L()
	}
	pb, err := demo.OpenPlayback(data, demo.PlaybackOptions{Logger: logger})
	if err != nil {
		return Report{}, fmt.Errorf("%s: %w", name, err)
	}
	report := Report{Name: name, Summary: replay.Summarize(pb.Header(), name), Tics: []Tic{}}

	//1.- Read input first, then the ghost record of the same tic.
	for !pb.Ended() {
		before := pb.Tics()
		cmd, err := pb.ReadTiccmd(0)
		if err != nil {
			return report, fmt.Errorf("%s: tic %d: %w", name, before, err)
		}
		if err := pb.CheckConsistency(); err != nil {
			return report, fmt.Errorf("%s: tic %d: %w", name, before, err)
		}
		if pb.Tics() == before {
			break
		}
		report.Tics = append(report.Tics, Tic{Tic: before, Cmd: cmd})
	}
	report.Synced, report.Corrections = pb.Synced(), pb.Corrections()

	if !pb.Header().Ghost {
		return report, nil
	}
	//2.- Replay the ghost track separately so frames carry the puppet view.
	feed := simulation.NewFeed(logger)
	if err := feed.Add(name, data, demo.GhostEnv{}); err != nil {
		return report, fmt.Errorf("%s: %w", name, err)
	}
	for !feed.Done() {
		for _, frame := range feed.Step() {
			if frame.Tic < len(report.Tics) {
				frame := frame
				report.Tics[frame.Tic].Ghost = &frame
			}
		}
	}
	return report, nil
}

// PlayBundle decodes every replay stored in an archive bundle directory.
func PlayBundle(dir string, logger *logging.Logger) (replay.Manifest, []Report, error) {
	manifest, err := replay.ReadManifest(dir)
	if err != nil {
		return replay.Manifest{}, nil, err
	}
	archived, err := replay.ReadArchive(dir)
	if err != nil {
		return manifest, nil, err
	}
	reports := make([]Report, 0, len(archived))
	for _, item := range archived {
		report, err := Play(item.Name, item.Data, logger)
		if err != nil {
			return manifest, reports, err
		}
		reports = append(reports, report)
	}
	return manifest, reports, nil
}

// PlayPath decodes a replay file or, for directories, an archive bundle.
func PlayPath(path string, logger *logging.Logger) ([]Report, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		_, reports, err := PlayBundle(path, logger)
		return reports, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	report, err := Play(info.Name(), data, logger)
	if err != nil {
		return nil, err
	}
	return []Report{report}, nil
}
