package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/STJr/SRB2-sub004/internal/auth"
	"github.com/STJr/SRB2-sub004/internal/demo"
	"github.com/STJr/SRB2-sub004/internal/logging"
	"github.com/STJr/SRB2-sub004/internal/replay"
	"github.com/STJr/SRB2-sub004/internal/simulation"
)

// WatchPath serves the live ghost feed over WebSocket.
const WatchPath = "/watch"

// ReadinessProvider exposes service state required for readiness checks.
type ReadinessProvider interface {
	StartupError() error
	Uptime() time.Duration
}

// RecordStore is the subset of replay.Records served over HTTP.
type RecordStore interface {
	Save(category string, data []byte) (replay.SaveResult, error)
	Catalog(category string) ([]replay.Entry, error)
	Export(category string, clock func() time.Time) (string, int, error)
}

// ReplaySource loads replays by name.
type ReplaySource interface {
	Resolve(name string) ([]byte, replay.Source, error)
}

// Authorizer checks admin tokens.
type Authorizer interface {
	Authorize(token, scope string) (*auth.TokenClaims, error)
}

// RateLimiter gates how frequently a client may invoke sensitive operations.
type RateLimiter interface {
	Allow(key string) bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Readiness   ReadinessProvider
	Records     RecordStore
	Source      ReplaySource
	Authorizer  Authorizer
	RateLimiter RateLimiter
	Storage     func() replay.StorageStats
	Monitor     *simulation.TickMonitor
	Watcher     *Watcher
	MaxUploadKB int
	TimeSource  func() time.Time
}

// HandlerSet bundles the replay service HTTP handlers.
type HandlerSet struct {
	logger      *logging.Logger
	readiness   ReadinessProvider
	records     RecordStore
	source      ReplaySource
	authorizer  Authorizer
	rateLimiter RateLimiter
	storage     func() replay.StorageStats
	monitor     *simulation.TickMonitor
	watcher     *Watcher
	maxUpload   int64
	now         func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	maxUpload := int64(opts.MaxUploadKB) * 1024
	if maxUpload <= 0 {
		maxUpload = 1024 * 1024
	}
	return &HandlerSet{
		logger:      logger,
		readiness:   opts.Readiness,
		records:     opts.Records,
		source:      opts.Source,
		authorizer:  opts.Authorizer,
		rateLimiter: opts.RateLimiter,
		storage:     opts.Storage,
		monitor:     opts.Monitor,
		watcher:     opts.Watcher,
		maxUpload:   maxUpload,
		now:         now,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/replays", h.ReplaysHandler())
	mux.HandleFunc("/replays/compare", h.CompareHandler())
	mux.HandleFunc("/replays/export", h.ExportHandler())
	if h.watcher != nil {
		mux.Handle(WatchPath, h.watcher)
	}
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports whether startup completed.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Watchers      int     `json:"watchers"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok", Watchers: h.watcher.Active()}
		if h.readiness != nil {
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := 0.0
		if h.readiness != nil {
			uptime = h.readiness.Uptime().Seconds()
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(w, "# HELP demo_uptime_seconds Service uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE demo_uptime_seconds gauge\n")
		fmt.Fprintf(w, "demo_uptime_seconds %.0f\n", uptime)

		fmt.Fprintf(w, "# HELP demo_watchers Current watch WebSocket sessions.\n")
		fmt.Fprintf(w, "# TYPE demo_watchers gauge\n")
		fmt.Fprintf(w, "demo_watchers %d\n", h.watcher.Active())

		if h.storage != nil {
			stats := h.storage()
			fmt.Fprintf(w, "# HELP demo_replay_categories Replay categories on disk.\n")
			fmt.Fprintf(w, "# TYPE demo_replay_categories gauge\n")
			fmt.Fprintf(w, "demo_replay_categories %d\n", stats.Categories)
			fmt.Fprintf(w, "# HELP demo_replay_recordings Prunable recordings on disk.\n")
			fmt.Fprintf(w, "# TYPE demo_replay_recordings gauge\n")
			fmt.Fprintf(w, "demo_replay_recordings %d\n", stats.Recordings)
			fmt.Fprintf(w, "# HELP demo_replay_protected Record slot files exempt from retention.\n")
			fmt.Fprintf(w, "# TYPE demo_replay_protected gauge\n")
			fmt.Fprintf(w, "demo_replay_protected %d\n", stats.Protected)
			fmt.Fprintf(w, "# HELP demo_replay_bundles Export bundles on disk.\n")
			fmt.Fprintf(w, "# TYPE demo_replay_bundles gauge\n")
			fmt.Fprintf(w, "demo_replay_bundles %d\n", stats.Bundles)
			fmt.Fprintf(w, "# HELP demo_replay_bytes Disk usage of persisted replays in bytes.\n")
			fmt.Fprintf(w, "# TYPE demo_replay_bytes gauge\n")
			fmt.Fprintf(w, "demo_replay_bytes %d\n", stats.Bytes)
		}
		if h.monitor != nil {
			snap := h.monitor.Snapshot()
			fmt.Fprintf(w, "# HELP demo_tic_duration_seconds Average wall time spent per played tic.\n")
			fmt.Fprintf(w, "# TYPE demo_tic_duration_seconds gauge\n")
			fmt.Fprintf(w, "demo_tic_duration_seconds %.6f\n", snap.Average.Seconds())
			fmt.Fprintf(w, "# HELP demo_tics_total Tics played across watch and stream sessions.\n")
			fmt.Fprintf(w, "# TYPE demo_tics_total counter\n")
			fmt.Fprintf(w, "demo_tics_total %d\n", snap.Samples)
			fmt.Fprintf(w, "# HELP demo_tic_overruns_total Tics that exceeded their time budget.\n")
			fmt.Fprintf(w, "# TYPE demo_tic_overruns_total counter\n")
			fmt.Fprintf(w, "demo_tic_overruns_total %d\n", snap.Overruns)
		}
	}
}

// ReplaysHandler lists replays on GET and stores an uploaded stream on POST.
func (h *HandlerSet) ReplaysHandler() http.HandlerFunc {
	type response struct {
		Category string         `json:"category"`
		Replays  []replay.Entry `json:"replays"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if h.records == nil {
			http.Error(w, "replay storage is unavailable", http.StatusServiceUnavailable)
			return
		}
		switch r.Method {
		case http.MethodGet:
			category := strings.TrimSpace(r.URL.Query().Get("category"))
			entries, err := h.records.Catalog(category)
			if err != nil {
				logging.LoggerFromContext(r.Context()).Error("replay catalog failed", logging.Error(err))
				http.Error(w, "failed to list replays", http.StatusInternalServerError)
				return
			}
			if entries == nil {
				entries = []replay.Entry{}
			}
			writeJSON(w, http.StatusOK, response{Category: category, Replays: entries})
		case http.MethodPost:
			h.upload(w, r)
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (h *HandlerSet) upload(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Category string        `json:"category"`
		Last     string        `json:"last"`
		Snapshot string        `json:"snapshot"`
		Promoted []replay.Slot `json:"promoted"`
	}
	reqLogger := logging.LoggerFromContext(r.Context()).With(
		logging.String("handler", "replay_upload"),
		logging.String("remote_addr", r.RemoteAddr),
	)
	if !h.admit(w, r, reqLogger, auth.ScopeUpload) {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		reqLogger.Warn("replay upload rejected", logging.Error(err))
		http.Error(w, "replay too large", http.StatusRequestEntityTooLarge)
		return
	}
	result, err := h.records.Save(r.URL.Query().Get("category"), data)
	if err != nil {
		if errors.Is(err, replay.ErrInvalidReplay) {
			reqLogger.Warn("replay upload rejected", logging.Error(err))
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		reqLogger.Error("replay upload failed", logging.Error(err))
		http.Error(w, "failed to store replay", http.StatusInternalServerError)
		return
	}
	if result.Promoted == nil {
		result.Promoted = []replay.Slot{}
	}
	writeJSON(w, http.StatusCreated, response{
		Category: result.Category,
		Last:     result.Last,
		Snapshot: result.Snapshot,
		Promoted: result.Promoted,
	})
}

// CompareHandler reports in which categories the "new" replay beats "old".
func (h *HandlerSet) CompareHandler() http.HandlerFunc {
	type response struct {
		Old    string   `json:"old"`
		New    string   `json:"new"`
		Flags  int      `json:"flags"`
		Better []string `json:"better"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.source == nil {
			http.Error(w, "replay lookup is unavailable", http.StatusServiceUnavailable)
			return
		}
		query := r.URL.Query()
		resp := response{Old: strings.TrimSpace(query.Get("old")), New: strings.TrimSpace(query.Get("new")), Better: []string{}}
		if resp.Old == "" || resp.New == "" {
			http.Error(w, "old and new are required", http.StatusBadRequest)
			return
		}
		headers := make([]*demo.Header, 0, 2)
		for _, name := range []string{resp.Old, resp.New} {
			header, status, err := h.loadPlayHeader(name)
			if err != nil {
				http.Error(w, err.Error(), status)
				return
			}
			headers = append(headers, header)
		}
		cmp := demo.CompareHeaders(headers[0], headers[1])
		resp.Flags = int(cmp)
		for _, flag := range []demo.Comparison{demo.BetterTime, demo.BetterScore, demo.BetterRings} {
			if cmp.Has(flag) {
				resp.Better = append(resp.Better, flag.String())
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *HandlerSet) loadPlayHeader(name string) (*demo.Header, int, error) {
	data, _, err := h.source.Resolve(name)
	if errors.Is(err, replay.ErrNotFound) {
		return nil, http.StatusNotFound, fmt.Errorf("replay %q not found", name)
	}
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("load %q failed", name)
	}
	header, err := demo.ReadHeader(demo.NewReader(data), demo.KindPlay)
	if err != nil {
		return nil, http.StatusUnprocessableEntity, fmt.Errorf("replay %q: %v", name, err)
	}
	return header, http.StatusOK, nil
}

// ExportHandler authorises and bundles the best replays of a category.
func (h *HandlerSet) ExportHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Location string `json:"location"`
		Replays  int    `json:"replays"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.LoggerFromContext(r.Context()).With(
			logging.String("handler", "replay_export"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !h.admit(w, r, reqLogger, auth.ScopeExport) {
			return
		}
		if h.records == nil {
			reqLogger.Warn("replay export denied: no record store configured")
			http.Error(w, "replay export is unavailable", http.StatusServiceUnavailable)
			return
		}
		location, added, err := h.records.Export(r.URL.Query().Get("category"), h.now)
		if err != nil {
			reqLogger.Error("replay export failed", logging.Error(err))
			http.Error(w, "failed to export replays", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("replay export written", logging.String("location", location), logging.Int("replays", added))
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Location: location, Replays: added})
	}
}

// admit runs the admin checks shared by mutating endpoints and writes the
// rejection when one fails.
func (h *HandlerSet) admit(w http.ResponseWriter, r *http.Request, reqLogger *logging.Logger, scope string) bool {
	if h.authorizer == nil {
		reqLogger.Warn("admin request denied: admin auth disabled")
		http.Error(w, "admin authentication not configured", http.StatusForbidden)
		return false
	}
	claims, err := h.authorizer.Authorize(bearerToken(r), scope)
	switch {
	case errors.Is(err, auth.ErrScope):
		reqLogger.Warn("admin request denied: scope", logging.String("scope", scope))
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	case err != nil:
		reqLogger.Warn("admin request denied: unauthorized request", logging.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	key := clientKey(r)
	if claims != nil && claims.Subject != "" {
		key = claims.Subject
	}
	if h.rateLimiter != nil && !h.rateLimiter.Allow(key) {
		reqLogger.Warn("admin request denied: rate limit exceeded", logging.String("client", key))
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return false
	}
	reqLogger.Debug("admin request admitted", logging.String("client", key))
	return true
}

// bearerToken extracts a token from the Authorization header, X-Admin-Token or the token query parameter.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if header != "" {
		return header
	}
	if token := strings.TrimSpace(r.Header.Get("X-Admin-Token")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
