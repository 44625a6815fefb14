package demo

import (
	"github.com/STJr/SRB2-sub004/internal/logging"
)

// DefaultCapacity is the recording buffer size used when none is configured.
const DefaultCapacity = 1024 * 1024

// RecordOptions configures a primary recording.
type RecordOptions struct {
	// Capacity bounds the whole stream in bytes, marker included.
	Capacity int
	// Header carries the metadata block; version, kind and checksum are
	// filled in by the recorder.
	Header Header
	// Origin seeds the ghost register with the actor's spawn position.
	Origin Origin
	Logger *logging.Logger
}

// Recorder writes a primary stream tic by tic.
type Recorder struct {
	header   Header
	cursor   *Cursor
	scores   ScoreMark
	cmd      TiccmdState
	ghost    GhostState
	extras   GhostExtras
	tick     Mark
	log      *logging.Logger
	tics     int
	ended    bool
	finished []byte
}

// NewRecorder writes the stream envelope into a fresh buffer.
func NewRecorder(opts RecordOptions) (*Recorder, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Recorder{
		header: opts.Header,
		cursor: NewWriter(capacity),
		ghost:  NewGhostState(opts.Origin),
		log:    logger,
	}
	r.header.Version = FormatVersion
	r.header.Kind = KindPlay
	scores, err := WriteHeader(r.cursor, &r.header)
	if err != nil {
		return nil, err
	}
	r.scores = scores
	r.tick = r.cursor.Mark()
	return r, nil
}

// Header returns the envelope being written.
func (r *Recorder) Header() *Header { return &r.header }

// Extras returns the accumulator for events raised during the current tic.
func (r *Recorder) Extras() *GhostExtras { return &r.extras }

// Ended reports whether recording stopped, either because the buffer filled
// up or because the stream was finished.
func (r *Recorder) Ended() bool { return r.ended }

// Tics returns the number of complete tics recorded.
func (r *Recorder) Tics() int { return r.tics }

// WriteTiccmd records the input of one tic. It returns false once recording
// has ended.
func (r *Recorder) WriteTiccmd(cmd Ticcmd) bool {
	if r.ended {
		return false
	}
	//1.- Stop cleanly while a worst-case frame plus the marker still fits.
	if r.cursor.Remaining() < TiccmdMargin+1 {
		r.stop("buffer full")
		return false
	}
	r.tick = r.cursor.Mark()
	if _, err := r.cmd.Encode(r.cursor, cmd); err != nil {
		r.rewind()
		r.stop(err.Error())
		return false
	}
	if !r.header.Ghost {
		r.tics++
	}
	return true
}

// WriteGhost records the actor state at the end of the tic whose input was
// just written. Streams without ghost data ignore it.
func (r *Recorder) WriteGhost(actor *ActorSnapshot) bool {
	if r.ended {
		return false
	}
	if !r.header.Ghost {
		return true
	}
	//1.- Size the frame first; a tic is either stored whole or not at all.
	frame := r.ghost.Diff(actor, &r.extras)
	if frame.Size(r.header.Layout)+1 > r.cursor.Remaining() {
		r.rewind()
		r.stop("buffer full")
		return false
	}
	//2.- Append the frame after the ticcmd of the same tic.
	if err := frame.WriteTo(r.cursor, r.header.Layout); err != nil {
		r.rewind()
		r.stop(err.Error())
		return false
	}
	r.tics++
	return true
}

// SetResult back-patches the scoring fields of the envelope.
func (r *Recorder) SetResult(s Scores) error {
	if err := r.scores.Patch(s); err != nil {
		return err
	}
	if r.header.Attack != AttackNone {
		r.header.Scores = s
	}
	return nil
}

// Finish terminates the stream, seals its checksum and returns a copy of it.
// Later calls return the same bytes.
func (r *Recorder) Finish() ([]byte, error) {
	if r.finished != nil {
		return r.finished, nil
	}
	r.ended = true
	r.cursor.WriteU8(Marker)
	if err := r.cursor.Err(); err != nil {
		return nil, err
	}
	out := append([]byte(nil), r.cursor.Bytes()...)
	Seal(out)
	copy(r.header.Checksum[:], out[checksumOffset:checksumEnd])
	r.finished = out
	r.log.Info("demo recorded",
		logging.Int("tics", r.tics),
		logging.Int("bytes", len(out)),
		logging.Int("map", int(r.header.Map)),
	)
	return out, nil
}

func (r *Recorder) rewind() {
	r.cursor.Truncate(r.tick)
}

func (r *Recorder) stop(reason string) {
	if r.ended {
		return
	}
	r.ended = true
	r.log.Warn("demo recording stopped",
		logging.String("reason", reason),
		logging.Int("tics", r.tics),
		logging.Int("capacity", r.cursor.Len()),
	)
}
