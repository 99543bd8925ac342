package api

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/chat"
	"github.com/matheus3301/leadchat/internal/rpc"
	"github.com/matheus3301/leadchat/internal/status"
	intsync "github.com/matheus3301/leadchat/internal/sync"
	"github.com/matheus3301/leadchat/internal/unread"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

// InboxService implements rpc.InboxServer.
type InboxService struct {
	profile   string
	startedAt time.Time
	engine    *intsync.Engine
	machine   *status.Machine
	unread    *unread.Aggregator
	bus       *bus.Bus
	logger    *zap.Logger
}

// NewInboxService creates the service for one profile's engine.
func NewInboxService(profile string, engine *intsync.Engine, machine *status.Machine, agg *unread.Aggregator, b *bus.Bus, logger *zap.Logger) *InboxService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InboxService{
		profile:   profile,
		startedAt: time.Now(),
		engine:    engine,
		machine:   machine,
		unread:    agg,
		bus:       b,
		logger:    logger,
	}
}

var _ rpc.InboxServer = (*InboxService)(nil)

func (s *InboxService) Status(_ context.Context, _ *emptypb.Empty) (*rpc.StatusResponse, error) {
	resp := &rpc.StatusResponse{
		Profile:   s.profile,
		State:     string(s.machine.Current()),
		LastError: s.machine.LastError(),
		UptimeMs:  time.Since(s.startedAt).Milliseconds(),
	}
	if a := s.engine.Active(); a != nil {
		resp.ActiveConversation = a.ID()
	}
	return resp, nil
}

func (s *InboxService) SelectConversation(ctx context.Context, req *rpc.SelectRequest) (*rpc.TimelineResponse, error) {
	if req.ConversationID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation_id is required")
	}
	if err := s.engine.Select(ctx, req.ConversationID); err != nil {
		return nil, toStatus("select conversation", err)
	}
	return s.Timeline(ctx, nil)
}

func (s *InboxService) Timeline(_ context.Context, _ *emptypb.Empty) (*rpc.TimelineResponse, error) {
	v, err := s.engine.Timeline()
	if err != nil {
		return nil, toStatus("timeline", err)
	}
	return viewToRPC(v), nil
}

func (s *InboxService) Send(ctx context.Context, req *rpc.SendRequest) (*rpc.SendResponse, error) {
	m, err := s.engine.Send(ctx, req.Text)
	if err != nil {
		return nil, toStatus("send", err)
	}
	return &rpc.SendResponse{Message: messageToRPC(m)}, nil
}

func (s *InboxService) SendTemplate(ctx context.Context, req *rpc.TemplateRequest) (*rpc.SendResponse, error) {
	if req.TemplateID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "template_id is required")
	}
	m, err := s.engine.SendTemplate(ctx, intsync.TemplateSend{
		ConversationID: req.ConversationID,
		Channel:        chat.Channel(req.Channel),
		To:             req.To,
		TemplateID:     req.TemplateID,
		Language:       req.Language,
		LeadID:         req.LeadID,
		Params:         req.Params,
	})
	if err != nil {
		return nil, toStatus("send template", err)
	}
	return &rpc.SendResponse{Message: messageToRPC(m)}, nil
}

func (s *InboxService) StartCapture(_ context.Context, req *rpc.StartCaptureRequest) (*rpc.StartCaptureResponse, error) {
	id, err := s.engine.StartCapture(chat.ParseKind(kindOr(req.Kind, "audio")))
	if err != nil {
		return nil, toStatus("start capture", err)
	}
	return &rpc.StartCaptureResponse{CaptureID: id}, nil
}

func (s *InboxService) AppendCapture(_ context.Context, req *rpc.AppendCaptureRequest) (*emptypb.Empty, error) {
	if err := s.engine.AppendCapture(req.CaptureID, req.Data); err != nil {
		return nil, toStatus("append capture", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *InboxService) StopCapture(_ context.Context, req *rpc.StopCaptureRequest) (*rpc.UploadResponse, error) {
	item, err := s.engine.StopCapture(req.CaptureID, time.Duration(req.DurationMs)*time.Millisecond)
	if err != nil {
		return nil, toStatus("stop capture", err)
	}
	if item == nil {
		return &rpc.UploadResponse{}, nil
	}
	u := uploadToRPC(*item)
	return &rpc.UploadResponse{Upload: &u}, nil
}

func (s *InboxService) Attach(_ context.Context, req *rpc.AttachRequest) (*rpc.UploadResponse, error) {
	if len(req.Data) == 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "data is required")
	}
	item, err := s.engine.Attach(chat.ParseKind(kindOr(req.Kind, "document")), req.Filename, req.Data, req.Caption)
	if err != nil {
		return nil, toStatus("attach", err)
	}
	u := uploadToRPC(*item)
	return &rpc.UploadResponse{Upload: &u}, nil
}

func (s *InboxService) Retry(ctx context.Context, req *rpc.RetryRequest) (*rpc.RetryResponse, error) {
	id, err := s.engine.Retry(ctx, req.TempID)
	if err != nil {
		return nil, toStatus("retry", err)
	}
	return &rpc.RetryResponse{TempID: id}, nil
}

func (s *InboxService) Dismiss(_ context.Context, req *rpc.DismissRequest) (*emptypb.Empty, error) {
	if err := s.engine.Dismiss(req.TempID); err != nil {
		return nil, toStatus("dismiss", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *InboxService) LoadOlder(ctx context.Context, _ *emptypb.Empty) (*rpc.LoadOlderResponse, error) {
	n, err := s.engine.LoadOlder(ctx)
	if err != nil {
		return nil, toStatus("load older", err)
	}
	resp := &rpc.LoadOlderResponse{Loaded: n}
	if v, err := s.engine.Timeline(); err == nil {
		resp.HasMore = v.HasMore
	}
	return resp, nil
}

func (s *InboxService) Unread(_ context.Context, _ *emptypb.Empty) (*rpc.UnreadResponse, error) {
	resp := &rpc.UnreadResponse{Badges: []rpc.Badge{}}
	for _, b := range s.unread.Badges() {
		resp.Badges = append(resp.Badges, badgeToRPC(b))
	}
	return resp, nil
}

func (s *InboxService) WatchEvents(req *rpc.WatchRequest, stream rpc.EventStream) error {
	ch, unsub := s.bus.Subscribe(req.Namespace, 256)
	defer unsub()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-ch:
			out, err := eventToRPC(evt)
			if err != nil {
				s.logger.Warn("encode event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		}
	}
}

func kindOr(kind, def string) string {
	if kind == "" {
		return def
	}
	return kind
}

// toStatus maps engine error kinds onto gRPC codes.
func toStatus(op string, err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, chat.ErrSessionExpired),
		errors.Is(err, chat.ErrConversationBlocked),
		errors.Is(err, chat.ErrNoActiveConversation):
		code = codes.FailedPrecondition
	case errors.Is(err, chat.ErrTemplateUnavailable), errors.Is(err, chat.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, chat.ErrNetwork):
		code = codes.Unavailable
	case errors.Is(err, chat.ErrUploadRejected):
		code = codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
