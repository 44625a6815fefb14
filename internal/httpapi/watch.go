package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/STJr/SRB2-sub004/internal/demo"
	"github.com/STJr/SRB2-sub004/internal/logging"
	"github.com/STJr/SRB2-sub004/internal/replay"
	"github.com/STJr/SRB2-sub004/internal/simulation"
)

const (
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	frameBacklog        = 64
)

// WatchOptions configures the live ghost feed.
type WatchOptions struct {
	Source         ReplaySource
	TicRate        int
	PingInterval   time.Duration
	MaxWatchers    int
	AllowedOrigins []string
	Limiter        RateLimiter
	Monitor        *simulation.TickMonitor
	Logger         *logging.Logger
}

// Watcher plays ghosts to WebSocket clients at the tic rate, one JSON
// message per ghost update.
type Watcher struct {
	source   ReplaySource
	ticRate  int
	ping     time.Duration
	max      int
	limiter  RateLimiter
	monitor  *simulation.TickMonitor
	log      *logging.Logger
	upgrader websocket.Upgrader
	active   atomic.Int64
}

// NewWatcher constructs the /watch handler.
func NewWatcher(opts WatchOptions) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	ping := opts.PingInterval
	if ping <= 0 {
		ping = defaultPingInterval
	}
	ticRate := opts.TicRate
	if ticRate <= 0 {
		ticRate = demo.TicRate
	}
	return &Watcher{
		source:  opts.Source,
		ticRate: ticRate,
		ping:    ping,
		max:     opts.MaxWatchers,
		limiter: opts.Limiter,
		monitor: opts.Monitor,
		log:     logger.Component("watch"),
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(opts.AllowedOrigins),
		},
	}
}

// Active returns the number of open watch sessions.
func (w *Watcher) Active() int {
	if w == nil {
		return 0
	}
	return int(w.active.Load())
}

// ServeHTTP loads every ghost named by the repeated "name" parameter and
// streams them until the last one despawns. "origin" optionally seeds the
// start position as "x,y,z" in map units.
func (w *Watcher) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	reqLogger := logging.LoggerFromContext(r.Context()).With(
		logging.String("handler", "watch"),
		logging.String("remote_addr", r.RemoteAddr),
	)
	if w.source == nil {
		http.Error(rw, "replay lookup is unavailable", http.StatusServiceUnavailable)
		return
	}
	query := r.URL.Query()
	var names []string
	for _, name := range query["name"] {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		http.Error(rw, "name is required", http.StatusBadRequest)
		return
	}
	origin, err := parseOrigin(query.Get("origin"))
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	if w.limiter != nil && !w.limiter.Allow(clientKey(r)) {
		reqLogger.Warn("watch denied: rate limit exceeded")
		http.Error(rw, "too many requests", http.StatusTooManyRequests)
		return
	}

	//1.- Reserve a slot before loading so concurrent opens cannot overshoot the cap.
	if n := w.active.Add(1); w.max > 0 && n > int64(w.max) {
		w.active.Add(-1)
		reqLogger.Warn("watch denied: capacity reached", logging.Int("max_watchers", w.max))
		http.Error(rw, "too many watchers", http.StatusServiceUnavailable)
		return
	}
	defer w.active.Add(-1)

	feed := simulation.NewFeed(reqLogger)
	for _, name := range names {
		data, _, err := w.source.Resolve(name)
		if errors.Is(err, replay.ErrNotFound) {
			http.Error(rw, fmt.Sprintf("replay %q not found", name), http.StatusNotFound)
			return
		}
		if err != nil {
			reqLogger.Error("watch replay load failed", logging.String("replay", name), logging.Error(err))
			http.Error(rw, "failed to load replay", http.StatusInternalServerError)
			return
		}
		if err := feed.Add(name, data, demo.GhostEnv{Origin: origin}); err != nil {
			http.Error(rw, fmt.Sprintf("ghost %q: %v", name, err), http.StatusUnprocessableEntity)
			return
		}
	}

	var header http.Header
	if traceID := rw.Header().Get(logging.TraceIDHeader); traceID != "" {
		header = http.Header{}
		header.Set(logging.TraceIDHeader, traceID)
	}
	conn, err := w.upgrader.Upgrade(rw, r, header)
	if err != nil {
		reqLogger.Warn("watch upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()
	reqLogger.Info("watch session opened", logging.Strings("ghosts", names))
	w.serve(r.Context(), conn, feed, reqLogger)
}

func (w *Watcher) serve(ctx context.Context, conn *websocket.Conn, feed *simulation.Feed, logger *logging.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	//1.- The reader only drains control frames; a client close ends the session.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	frames := make(chan []simulation.Frame, frameBacklog)
	loop := simulation.NewLoop(w.ticRate, func(uint64) bool {
		if batch := feed.Step(); len(batch) > 0 {
			select {
			case frames <- batch:
			case <-ctx.Done():
				return false
			}
		}
		return !feed.Done()
	}).WithMonitor(w.monitor)
	loop.Start(ctx)
	defer loop.Stop()

	ping := time.NewTicker(w.ping)
	defer ping.Stop()
	for {
		select {
		case batch := <-frames:
			if err := writeFrames(conn, batch); err != nil {
				logger.Debug("watch write failed", logging.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-loop.Done():
			if ctx.Err() != nil {
				return
			}
			//2.- Flush what the final tics produced before closing normally.
			for drained := false; !drained; {
				select {
				case batch := <-frames:
					if err := writeFrames(conn, batch); err != nil {
						return
					}
				default:
					drained = true
				}
			}
			closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "playback finished")
			_ = conn.WriteControl(websocket.CloseMessage, closing, time.Now().Add(writeWait))
			logger.Info("watch session finished", logging.Int("tics", feed.Tic()))
			return
		case <-ctx.Done():
			logger.Debug("watch session closed by client")
			return
		}
	}
}

func writeFrames(conn *websocket.Conn, batch []simulation.Frame) error {
	for i := range batch {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		if err := conn.WriteJSON(&batch[i]); err != nil {
			return err
		}
	}
	return nil
}

func parseOrigin(raw string) (demo.Origin, error) {
	var origin demo.Origin
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return origin, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return origin, fmt.Errorf("origin must be x,y,z in map units")
	}
	coords := [3]*demo.Fixed{&origin.X, &origin.Y, &origin.Z}
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return origin, fmt.Errorf("origin: %w", err)
		}
		*coords[i] = demo.Fixed(value * float64(demo.FracUnit))
	}
	return origin, nil
}

// originChecker admits browsers from the configured origins. An empty list
// admits everyone.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin = strings.ToLower(strings.TrimSpace(origin)); origin != "" {
			set[origin] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		origin := strings.ToLower(strings.TrimSpace(r.Header.Get("Origin")))
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
