package server

import (
	"context"

	"match-chat/infrastructure/wire"

	"google.golang.org/grpc"
)

const (
	ServiceName   = "matchchat.v1.MatchChat"
	SessionMethod = "/" + ServiceName + "/Session"
)

// MatchChatServer is a bidirectional stream of wire frames per connection.
type MatchChatServer interface {
	Session(stream SessionStream) error
}

type SessionStream interface {
	Send(*wire.Frame) error
	Recv() (*wire.Frame, error)
	grpc.ServerStream
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchChatServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Session",
			Handler:       sessionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

func RegisterMatchChatServer(s grpc.ServiceRegistrar, srv MatchChatServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func sessionHandler(srv any, stream grpc.ServerStream) error {
	return srv.(MatchChatServer).Session(&sessionStream{stream})
}

type sessionStream struct {
	grpc.ServerStream
}

func (s *sessionStream) Send(f *wire.Frame) error { return s.ServerStream.SendMsg(f) }

func (s *sessionStream) Recv() (*wire.Frame, error) {
	f := new(wire.Frame)
	if err := s.ServerStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

// SessionClient is the client side of a Session stream.
type SessionClient interface {
	Send(*wire.Frame) error
	Recv() (*wire.Frame, error)
	grpc.ClientStream
}

// OpenSession starts a Session stream using the JSON codec.
func OpenSession(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (SessionClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := cc.NewStream(ctx, &ServiceDesc.Streams[0], SessionMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &sessionClient{stream}, nil
}

type sessionClient struct {
	grpc.ClientStream
}

func (c *sessionClient) Send(f *wire.Frame) error { return c.ClientStream.SendMsg(f) }

func (c *sessionClient) Recv() (*wire.Frame, error) {
	f := new(wire.Frame)
	if err := c.ClientStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}
