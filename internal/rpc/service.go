package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "leadchat.v1.Inbox"

// InboxServer is implemented by the daemon's API layer.
type InboxServer interface {
	Status(context.Context, *emptypb.Empty) (*StatusResponse, error)
	SelectConversation(context.Context, *SelectRequest) (*TimelineResponse, error)
	Timeline(context.Context, *emptypb.Empty) (*TimelineResponse, error)
	Send(context.Context, *SendRequest) (*SendResponse, error)
	SendTemplate(context.Context, *TemplateRequest) (*SendResponse, error)
	StartCapture(context.Context, *StartCaptureRequest) (*StartCaptureResponse, error)
	AppendCapture(context.Context, *AppendCaptureRequest) (*emptypb.Empty, error)
	StopCapture(context.Context, *StopCaptureRequest) (*UploadResponse, error)
	Attach(context.Context, *AttachRequest) (*UploadResponse, error)
	Retry(context.Context, *RetryRequest) (*RetryResponse, error)
	Dismiss(context.Context, *DismissRequest) (*emptypb.Empty, error)
	LoadOlder(context.Context, *emptypb.Empty) (*LoadOlderResponse, error)
	Unread(context.Context, *emptypb.Empty) (*UnreadResponse, error)
	WatchEvents(*WatchRequest, EventStream) error
}

// EventStream is the server side of WatchEvents.
type EventStream interface {
	Send(*Event) error
	Context() context.Context
}

func unary[Req, Resp any](name string, call func(InboxServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(InboxServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(InboxServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(e *Event) error {
	return s.SendMsg(e)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(InboxServer).WatchEvents(in, &eventStream{stream})
}

// ServiceDesc describes leadchat.v1.Inbox for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InboxServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Status", InboxServer.Status),
		unary("SelectConversation", InboxServer.SelectConversation),
		unary("Timeline", InboxServer.Timeline),
		unary("Send", InboxServer.Send),
		unary("SendTemplate", InboxServer.SendTemplate),
		unary("StartCapture", InboxServer.StartCapture),
		unary("AppendCapture", InboxServer.AppendCapture),
		unary("StopCapture", InboxServer.StopCapture),
		unary("Attach", InboxServer.Attach),
		unary("Retry", InboxServer.Retry),
		unary("Dismiss", InboxServer.Dismiss),
		unary("LoadOlder", InboxServer.LoadOlder),
		unary("Unread", InboxServer.Unread),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
}

// Register attaches srv to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv InboxServer) {
	s.RegisterService(&ServiceDesc, srv)
}
