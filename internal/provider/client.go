package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/leadchat/internal/chat"
)

// APIError is a non-transient error answered by the provider.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap exposes the chat error kind the status maps to, if any.
func (e *APIError) Unwrap() error {
	return e.kind
}

// Client is the JSON/HTTP provider client.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a provider client. timeout bounds every request.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchLatest returns the newest page of a conversation.
func (c *Client) FetchLatest(ctx context.Context, conversationID string, limit int) (*Page, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.fetchPage(ctx, conversationID, q)
}

// FetchOlder returns the page of messages strictly older than beforeID.
func (c *Client) FetchOlder(ctx context.Context, conversationID, beforeID string, limit int) (*Page, error) {
	q := url.Values{}
	q.Set("before", beforeID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.fetchPage(ctx, conversationID, q)
}

func (c *Client) fetchPage(ctx context.Context, conversationID string, q url.Values) (*Page, error) {
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var wp wirePage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &wp, nil); err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	page := &Page{
		Messages:     normalize(wp.Messages, conversationID),
		Conversation: wp.Conversation.toConversation(),
		HasMore:      wp.HasMore,
	}
	if page.Conversation.ID == "" {
		page.Conversation.ID = conversationID
	}
	return page, nil
}

// SendText sends a free-form text. clientRef is echoed back on the message.
func (c *Client) SendText(ctx context.Context, conversationID, body, clientRef string) (chat.Message, error) {
	payload := map[string]any{
		"type":       "text",
		"body":       body,
		"client_ref": clientRef,
	}
	var wm wireMessage
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.doJSON(ctx, http.MethodPost, path, payload, &wm, nil); err != nil {
		return chat.Message{}, fmt.Errorf("send text: %w", err)
	}
	if wm.ClientRef == "" {
		wm.ClientRef = clientRef
	}
	return wm.toMessage(conversationID, chat.Outbound), nil
}

// ListTemplates returns the templates of a channel, optionally filtered by language.
func (c *Client) ListTemplates(ctx context.Context, channel chat.Channel, language string) ([]chat.Template, error) {
	q := url.Values{}
	q.Set("channel", string(channel))
	if language != "" {
		q.Set("language", language)
	}
	var resp struct {
		Templates []wireTemplate `json:"templates"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/templates?"+q.Encode(), nil, &resp, nil); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	out := make([]chat.Template, 0, len(resp.Templates))
	for _, t := range resp.Templates {
		out = append(out, chat.Template{
			ID:       t.ID,
			Name:     t.Name,
			Language: t.Language,
			Channel:  chat.Channel(t.Channel),
			Approved: strings.EqualFold(t.Status, "approved"),
		})
	}
	return out, nil
}

// SendTemplate sends a template message, creating the conversation when needed.
func (c *Client) SendTemplate(ctx context.Context, req TemplateRequest) (*TemplateResult, error) {
	payload := map[string]any{
		"conversation_id": req.ConversationID,
		"channel":         string(req.Channel),
		"to":              req.To,
		"template_id":     req.TemplateID,
		"language":        req.Language,
		"client_ref":      req.ClientRef,
	}
	if req.LeadID != "" {
		payload["metadata"] = map[string]string{"lead_id": req.LeadID}
	}
	if len(req.Params) > 0 {
		payload["params"] = req.Params
	}
	var wr wireTemplateResult
	notFound := func(apiErr *APIError) {
		if apiErr.StatusCode == http.StatusNotFound {
			apiErr.kind = chat.ErrTemplateUnavailable
		}
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/templates/send", payload, &wr, notFound); err != nil {
		return nil, fmt.Errorf("send template: %w", err)
	}
	res := &TemplateResult{}
	if wr.Conversation != nil {
		conv := wr.Conversation.toConversation()
		res.Conversation = &conv
	}
	convID := req.ConversationID
	if convID == "" && res.Conversation != nil {
		convID = res.Conversation.ID
	}
	if wr.Message != nil {
		if wr.Message.ClientRef == "" {
			wr.Message.ClientRef = req.ClientRef
		}
		res.Message = wr.Message.toMessage(convID, chat.Outbound)
	}
	return res, nil
}

// Upload sends one attachment as multipart form data.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (chat.Message, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	filename := req.Filename
	if filename == "" {
		filename = strings.ToLower(string(req.Kind))
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return chat.Message{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(req.Data); err != nil {
		return chat.Message{}, fmt.Errorf("write form file: %w", err)
	}
	fields := map[string]string{
		"type":       strings.ToLower(string(req.Kind)),
		"client_ref": req.ClientRef,
	}
	if req.Caption != "" {
		fields["caption"] = req.Caption
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return chat.Message{}, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return chat.Message{}, fmt.Errorf("close multipart writer: %w", err)
	}

	path := "/v1/conversations/" + url.PathEscape(req.ConversationID) + "/media"
	httpReq, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return chat.Message{}, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	var wm wireMessage
	rejected := func(apiErr *APIError) {
		switch apiErr.StatusCode {
		case http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
			apiErr.kind = chat.ErrUploadRejected
		}
	}
	if err := c.do(httpReq, &wm, rejected); err != nil {
		return chat.Message{}, fmt.Errorf("upload media: %w", err)
	}
	if wm.ClientRef == "" {
		wm.ClientRef = req.ClientRef
	}
	return wm.toMessage(req.ConversationID, chat.Outbound), nil
}

// FetchUnread returns the per-lead, per-channel unread totals.
func (c *Client) FetchUnread(ctx context.Context) ([]chat.UnreadCount, error) {
	var resp struct {
		Counts []wireUnread `json:"counts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/unread", nil, &resp, nil); err != nil {
		return nil, fmt.Errorf("fetch unread: %w", err)
	}
	out := make([]chat.UnreadCount, 0, len(resp.Counts))
	for _, u := range resp.Counts {
		if u.LeadID == "" || u.Channel == "" {
			continue
		}
		out = append(out, chat.UnreadCount{LeadID: u.LeadID, Channel: chat.Channel(u.Channel), Count: u.Count})
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any, classify func(*APIError)) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out, classify)
}

// do executes the request and decodes a 2xx JSON body into out. Transport
// failures, timeouts, 5xx, 408 and 429 are ErrNetwork.
func (c *Client) do(req *http.Request, out any, classify func(*APIError)) error {
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", chat.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", chat.ErrNetwork, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var we wireError
	if json.Unmarshal(data, &we) == nil {
		apiErr.Code = we.Code
		apiErr.Message = we.Message
		if apiErr.Message == "" {
			apiErr.Message = we.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		apiErr.kind = chat.ErrNetwork
	case apiErr.Code == "template_unavailable":
		apiErr.kind = chat.ErrTemplateUnavailable
	case classify != nil:
		classify(apiErr)
	}
	return apiErr
}
