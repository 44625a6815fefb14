package demo

import (
	"github.com/STJr/SRB2-sub004/internal/logging"
)

// Consistency cross-checks a live actor against the positions recorded in a
// primary stream and pulls it back onto the recorded track when it drifts.
type Consistency struct {
	shadow      GhostState
	synced      bool
	corrections int
	log         *logging.Logger
}

// NewConsistency seeds the shadow register at the playback origin.
func NewConsistency(origin Origin, logger *logging.Logger) *Consistency {
	if logger == nil {
		logger = logging.L()
	}
	return &Consistency{shadow: NewGhostState(origin), synced: true, log: logger}
}

// Synced reports whether the live actor has matched the recording on every
// checked tic so far. Once false it stays false.
func (k *Consistency) Synced() bool { return k.synced }

// Corrections returns how many tics needed the live actor relocated.
func (k *Consistency) Corrections() int { return k.corrections }

// Check decodes the next ghost frame into the shadow register and compares
// it with body in whole map units. Hit records are handed to hits when set.
func (k *Consistency) Check(c *Cursor, l Layout, body Body, hits HitResyncer) error {
	update, err := k.shadow.Decode(c, l)
	if err != nil {
		return err
	}
	if hits != nil {
		for _, hit := range update.Hits {
			hits.ResyncHit(hit)
		}
	}
	if body == nil {
		return nil
	}
	x, y, z := body.Position()
	if x.MapUnits() == k.shadow.X.MapUnits() &&
		y.MapUnits() == k.shadow.Y.MapUnits() &&
		z.MapUnits() == k.shadow.Z.MapUnits() {
		return nil
	}
	//1.- Pull the live body back onto the recorded track.
	body.Relocate(k.shadow.X, k.shadow.Y, k.shadow.Z)
	k.corrections++
	//2.- Warn once; the flag stays latched for the rest of the session.
	if k.synced {
		k.synced = false
		k.log.Warn("demo playback desynchronized",
			logging.Int("live_x", int(x.MapUnits())),
			logging.Int("live_y", int(y.MapUnits())),
			logging.Int("live_z", int(z.MapUnits())),
			logging.Int("recorded_x", int(k.shadow.X.MapUnits())),
			logging.Int("recorded_y", int(k.shadow.Y.MapUnits())),
			logging.Int("recorded_z", int(k.shadow.Z.MapUnits())),
		)
	}
	return nil
}
