package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Client is a typed leadchat.v1.Inbox client.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, c *Client, name string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, fullMethod(name), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, "Status", &emptypb.Empty{})
}

func (c *Client) SelectConversation(ctx context.Context, id string) (*TimelineResponse, error) {
	return invoke[TimelineResponse](ctx, c, "SelectConversation", &SelectRequest{ConversationID: id})
}

func (c *Client) Timeline(ctx context.Context) (*TimelineResponse, error) {
	return invoke[TimelineResponse](ctx, c, "Timeline", &emptypb.Empty{})
}

func (c *Client) Send(ctx context.Context, text string) (*SendResponse, error) {
	return invoke[SendResponse](ctx, c, "Send", &SendRequest{Text: text})
}

func (c *Client) SendTemplate(ctx context.Context, req *TemplateRequest) (*SendResponse, error) {
	return invoke[SendResponse](ctx, c, "SendTemplate", req)
}

func (c *Client) StartCapture(ctx context.Context, kind string) (*StartCaptureResponse, error) {
	return invoke[StartCaptureResponse](ctx, c, "StartCapture", &StartCaptureRequest{Kind: kind})
}

func (c *Client) AppendCapture(ctx context.Context, captureID string, data []byte) error {
	_, err := invoke[emptypb.Empty](ctx, c, "AppendCapture", &AppendCaptureRequest{CaptureID: captureID, Data: data})
	return err
}

func (c *Client) StopCapture(ctx context.Context, req *StopCaptureRequest) (*UploadResponse, error) {
	return invoke[UploadResponse](ctx, c, "StopCapture", req)
}

func (c *Client) Attach(ctx context.Context, req *AttachRequest) (*UploadResponse, error) {
	return invoke[UploadResponse](ctx, c, "Attach", req)
}

func (c *Client) Retry(ctx context.Context, tempID string) (*RetryResponse, error) {
	return invoke[RetryResponse](ctx, c, "Retry", &RetryRequest{TempID: tempID})
}

func (c *Client) Dismiss(ctx context.Context, tempID string) error {
	_, err := invoke[emptypb.Empty](ctx, c, "Dismiss", &DismissRequest{TempID: tempID})
	return err
}

func (c *Client) LoadOlder(ctx context.Context) (*LoadOlderResponse, error) {
	return invoke[LoadOlderResponse](ctx, c, "LoadOlder", &emptypb.Empty{})
}

func (c *Client) Unread(ctx context.Context) (*UnreadResponse, error) {
	return invoke[UnreadResponse](ctx, c, "Unread", &emptypb.Empty{})
}

// EventWatcher receives events from a WatchEvents stream.
type EventWatcher struct {
	stream grpc.ClientStream
}

// Recv blocks until the next event arrives.
func (w *EventWatcher) Recv() (*Event, error) {
	e := new(Event)
	if err := w.stream.RecvMsg(e); err != nil {
		return nil, err
	}
	return e, nil
}

// WatchEvents streams daemon events whose kind starts with namespace. The
// stream ends when ctx is canceled.
func (c *Client) WatchEvents(ctx context.Context, namespace string) (*EventWatcher, error) {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("WatchEvents"))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&WatchRequest{Namespace: namespace}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventWatcher{stream: stream}, nil
}
