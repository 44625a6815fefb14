package inspect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/STJr/SRB2-sub004/internal/demo"
	"github.com/STJr/SRB2-sub004/internal/logging"
	"github.com/STJr/SRB2-sub004/internal/replay"
	"github.com/STJr/SRB2-sub004/internal/simulation"
)

// ReplaySource loads replays by name.
type ReplaySource interface {
	Resolve(name string) ([]byte, replay.Source, error)
}

// Option customises the behaviour of the inspection service.
type Option func(*Service)

// tickerFactory constructs cancellable tick channels for paced streaming.
type tickerFactory func(time.Duration) (<-chan time.Time, func())

// WithCompressor overrides the codec used for streamed frames.
func WithCompressor(compressor Compressor) Option {
	return func(s *Service) {
		if compressor != nil {
			s.compressor = compressor
		}
	}
}

// WithTickerFactory overrides the pacing ticker factory (used in tests).
func WithTickerFactory(factory tickerFactory) Option {
	return func(s *Service) {
		if factory != nil {
			s.newTicker = factory
		}
	}
}

// WithTicRate sets how many frames per second StreamGhost sends.
func WithTicRate(rate int) Option {
	return func(s *Service) {
		if rate > 0 {
			s.ticRate = rate
		}
	}
}

// WithMonitor records the time spent producing each streamed tic.
func WithMonitor(monitor *simulation.TickMonitor) Option {
	return func(s *Service) { s.monitor = monitor }
}

// WithLogger overrides the service logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.log = logger
		}
	}
}

// Service implements InspectorServer on top of a replay source.
type Service struct {
	source     ReplaySource
	codecs     Registry
	compressor Compressor
	newTicker  tickerFactory
	ticRate    int
	monitor    *simulation.TickMonitor
	log        *logging.Logger
}

// NewService wires the inspection service to its replay source.
func NewService(source ReplaySource, opts ...Option) (*Service, error) {
	codecs, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	service := &Service{
		source:     source,
		codecs:     codecs,
		compressor: codecs["snappy"],
		newTicker:  defaultTickerFactory,
		ticRate:    demo.TicRate,
		log:        logging.L(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	service.log = service.log.Component("inspect")
	return service, nil
}

func defaultTickerFactory(interval time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(interval)
	return ticker.C, ticker.Stop
}

// load returns the replay named by the request. Inline payloads take
// precedence: "payload" holds base64 of the stream compressed with
// "encoding", or of the raw stream when no encoding is given.
func (s *Service) load(req *structpb.Struct, key string) (string, []byte, error) {
	fields := req.GetFields()
	name := fields[key].GetStringValue()
	if raw := fields["payload"].GetStringValue(); raw != "" && key == "name" {
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return "", nil, status.Errorf(codes.InvalidArgument, "payload: %v", err)
		}
		if encoding := fields["encoding"].GetStringValue(); encoding != "" {
			codec, err := s.codecs.Lookup(encoding)
			if err != nil {
				return "", nil, status.Error(codes.InvalidArgument, err.Error())
			}
			if data, err = codec.Decompress(data); err != nil {
				return "", nil, status.Errorf(codes.InvalidArgument, "payload: %v", err)
			}
		}
		if name == "" {
			name = "inline"
		}
		return name, data, nil
	}
	if name == "" {
		return "", nil, status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	if s.source == nil {
		return "", nil, status.Error(codes.FailedPrecondition, "no replay source configured")
	}
	data, _, err := s.source.Resolve(name)
	if errors.Is(err, replay.ErrNotFound) {
		return "", nil, status.Errorf(codes.NotFound, "replay %q not found", name)
	}
	if err != nil {
		return "", nil, status.Errorf(codes.Internal, "load %q: %v", name, err)
	}
	return name, data, nil
}

// InspectHeader decodes the envelope of one replay.
func (s *Service) InspectHeader(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, data, err := s.load(req, "name")
	if err != nil {
		return nil, err
	}
	header, err := demo.ParseHeader(data)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "replay %q: %v", name, err)
	}
	fields, err := toFields(replay.Summarize(header, name))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode summary: %v", err)
	}
	fields["bytes"] = len(data)
	fields["checksum_valid"] = demo.VerifyChecksum(data) == nil
	fields["version_skew"] = header.VersionSkew
	supported := []any{}
	for _, version := range demo.SupportedVersions() {
		supported = append(supported, int(version))
	}
	fields["supported_versions"] = supported
	fields["recording_version"] = int(demo.CurrentLayout().Version)
	return structpb.NewStruct(fields)
}

// CompareReplays reports in which categories "new" beats "old".
func (s *Service) CompareReplays(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	headers := make([]*demo.Header, 0, 2)
	for _, key := range []string{"old", "new"} {
		name, data, err := s.load(req, key)
		if err != nil {
			return nil, err
		}
		header, err := demo.ReadHeader(demo.NewReader(data), demo.KindPlay)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "replay %q: %v", name, err)
		}
		headers = append(headers, header)
	}
	cmp := demo.CompareHeaders(headers[0], headers[1])
	better := []any{}
	for _, flag := range []demo.Comparison{demo.BetterTime, demo.BetterScore, demo.BetterRings} {
		if cmp.Has(flag) {
			better = append(better, flag.String())
		}
	}
	return structpb.NewStruct(map[string]any{
		"flags":  int(cmp),
		"better": better,
	})
}

// StreamGhost plays one or more ghosts and sends one message per ghost and
// tic at the configured tic rate. Frames are JSON compressed with the
// service codec and base64 encoded in "payload".
func (s *Service) StreamGhost(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	names := []string{}
	for _, value := range req.GetFields()["names"].GetListValue().GetValues() {
		if name := value.GetStringValue(); name != "" {
			names = append(names, name)
		}
	}
	if name := req.GetFields()["name"].GetStringValue(); name != "" {
		names = append(names, name)
	}
	if len(names) == 0 {
		return status.Error(codes.InvalidArgument, "name or names is required")
	}
	origin, err := originFrom(req.GetFields()["origin"])
	if err != nil {
		return err
	}

	feed := simulation.NewFeed(s.log)
	for _, name := range names {
		single := &structpb.Struct{Fields: map[string]*structpb.Value{"name": structpb.NewStringValue(name)}}
		_, data, err := s.load(single, "name")
		if err != nil {
			return err
		}
		if err := feed.Add(name, data, demo.GhostEnv{Origin: origin}); err != nil {
			return status.Errorf(codes.InvalidArgument, "ghost %q: %v", name, err)
		}
	}

	ctx := stream.Context()
	interval := time.Second / time.Duration(s.ticRate)
	tickCh, stop := s.newTicker(interval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			//1.- Surface context cancellation so clients can retry.
			if errors.Is(ctx.Err(), context.Canceled) {
				return status.Error(codes.Canceled, "stream cancelled")
			}
			return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
		case <-tickCh:
			started := time.Now()
			frames := feed.Step()
			for i := range frames {
				msg, err := s.encodeFrame(&frames[i])
				if err != nil {
					return status.Errorf(codes.Internal, "encode frame: %v", err)
				}
				if err := stream.Send(msg); err != nil {
					return err
				}
			}
			s.monitor.Observe(time.Since(started), interval)
			//2.- Close the stream once the last ghost sent its despawn frame.
			if feed.Done() {
				return nil
			}
		}
	}
}

func (s *Service) encodeFrame(frame *simulation.Frame) (*structpb.Struct, error) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	compressed, err := s.compressor.Compress(payload)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"tic":      frame.Tic,
		"ghost":    frame.Ghost,
		"encoding": s.compressor.Name(),
		"payload":  base64.StdEncoding.EncodeToString(compressed),
	})
}

// DecodeFrame restores the frame carried by a StreamGhost message.
func DecodeFrame(registry Registry, msg *structpb.Struct) (simulation.Frame, error) {
	var frame simulation.Frame
	fields := msg.GetFields()
	codec, err := registry.Lookup(fields["encoding"].GetStringValue())
	if err != nil {
		return frame, err
	}
	compressed, err := base64.StdEncoding.DecodeString(fields["payload"].GetStringValue())
	if err != nil {
		return frame, err
	}
	payload, err := codec.Decompress(compressed)
	if err != nil {
		return frame, err
	}
	err = json.Unmarshal(payload, &frame)
	return frame, err
}

func originFrom(value *structpb.Value) (demo.Origin, error) {
	var origin demo.Origin
	if value == nil {
		return origin, nil
	}
	coords := value.GetListValue().GetValues()
	if len(coords) != 3 {
		return origin, status.Error(codes.InvalidArgument, "origin must hold three map unit coordinates")
	}
	origin.X = demo.Fixed(coords[0].GetNumberValue() * float64(demo.FracUnit))
	origin.Y = demo.Fixed(coords[1].GetNumberValue() * float64(demo.FracUnit))
	origin.Z = demo.Fixed(coords[2].GetNumberValue() * float64(demo.FracUnit))
	return origin, nil
}

// toFields converts a JSON-tagged value into a structpb compatible map.
func toFields(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
