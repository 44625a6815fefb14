package inspect

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "srb2.demo.v1.ReplayInspector"

const (
	inspectHeaderMethod  = "/" + ServiceName + "/InspectHeader"
	compareReplaysMethod = "/" + ServiceName + "/CompareReplays"
	streamGhostMethod    = "/" + ServiceName + "/StreamGhost"
)

// InspectorServer is the server API of the replay inspection service. Every
// message is a structpb.Struct so no generated code is needed.
type InspectorServer interface {
	InspectHeader(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CompareReplays(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	StreamGhost(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

// ServiceDesc describes the inspection service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InspectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "InspectHeader", Handler: inspectHeaderHandler},
		{MethodName: "CompareReplays", Handler: compareReplaysHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamGhost", Handler: streamGhostHandler, ServerStreams: true},
	},
	Metadata: "srb2/demo/v1/inspect.proto",
}

// Register attaches srv to the gRPC server.
func Register(s grpc.ServiceRegistrar, srv InspectorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func inspectHeaderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InspectorServer).InspectHeader(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: inspectHeaderMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InspectorServer).InspectHeader(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func compareReplaysHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InspectorServer).CompareReplays(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: compareReplaysMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InspectorServer).CompareReplays(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamGhostHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(InspectorServer).StreamGhost(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// Client calls the inspection service over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// InspectHeader decodes the envelope of a replay.
func (c *Client) InspectHeader(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, inspectHeaderMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CompareReplays compares the results of two replays.
func (c *Client) CompareReplays(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, compareReplaysMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StreamGhost opens a ghost playback stream.
func (c *Client) StreamGhost(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], streamGhostMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
