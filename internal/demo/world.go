package demo

// Body is the live actor a playback checks against its recorded positions.
// The simulation owns it; playback only reads its position or moves it back
// onto the recorded track.
type Body interface {
	Position() (x, y, z Fixed)
	Relocate(x, y, z Fixed)
}

// Puppet is an actor driven entirely by a decoded stream.
type Puppet interface {
	ApplyGhost(update *GhostUpdate)
	// Despawn starts the freeze grace period; the actor is removed once
	// fuse tics have elapsed.
	Despawn(fuse int)
}

// HitResyncer receives the hit records of a primary playback so the live
// world can settle enemy health the same way the recording did.
type HitResyncer interface {
	ResyncHit(hit HitRecord)
}

// FuseTics is the freeze period of a ghost whose stream ended.
const FuseTics = 35

// TicRate is the number of simulation tics per second.
const TicRate = 35
