package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matheus3301/leadchat/internal/lock"
	"github.com/matheus3301/leadchat/internal/profile"
	"github.com/matheus3301/leadchat/internal/rpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const captureChunk = 32 << 10

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "profiles" {
		cmdProfiles(*jsonFlag)
		return
	}

	c, err := rpc.Dial(profile.SocketPath(profileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", profileName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		namespace := ""
		if len(args) > 1 {
			namespace = args[1]
		}
		cmdWatch(c, namespace)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out := printer{json: *jsonFlag}
	switch args[0] {
	case "status":
		cmdStatus(ctx, c, profileName, out)
	case "select":
		need(args, 2, "select <conversation-id>")
		resp, err := c.SelectConversation(ctx, args[1])
		check(err)
		out.timeline(resp)
	case "timeline":
		resp, err := c.Timeline(ctx)
		check(err)
		out.timeline(resp)
	case "send":
		need(args, 2, "send <text>")
		resp, err := c.Send(ctx, strings.Join(args[1:], " "))
		check(err)
		out.message(resp.Message)
	case "template":
		cmdTemplate(ctx, c, args[1:], out)
	case "attach":
		need(args, 2, "attach <file> [caption]")
		cmdAttach(ctx, c, args[1], strings.Join(args[2:], " "), out)
	case "record":
		need(args, 3, "record <file> <duration>")
		cmdRecord(ctx, c, args[1], args[2], out)
	case "retry":
		need(args, 2, "retry <temp-id>")
		resp, err := c.Retry(ctx, args[1])
		check(err)
		out.value(resp, "retrying as %s\n", resp.TempID)
	case "dismiss":
		need(args, 2, "dismiss <temp-id>")
		check(c.Dismiss(ctx, args[1]))
		out.value(map[string]bool{"dismissed": true}, "dismissed\n")
	case "older":
		resp, err := c.LoadOlder(ctx)
		check(err)
		out.value(resp, "loaded %d older messages (more: %v)\n", resp.Loaded, resp.HasMore)
	case "unread":
		resp, err := c.Unread(ctx)
		check(err)
		out.unread(resp)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: leadchatctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                       Show daemon status")
	fmt.Fprintln(os.Stderr, "  profiles                     List known profiles")
	fmt.Fprintln(os.Stderr, "  select <conversation-id>     Open a conversation")
	fmt.Fprintln(os.Stderr, "  timeline                     Show the open conversation")
	fmt.Fprintln(os.Stderr, "  send <text>                  Send a free-form text")
	fmt.Fprintln(os.Stderr, "  template [flags] <id> [params...]  Send an approved template")
	fmt.Fprintln(os.Stderr, "  attach <file> [caption]      Upload a file")
	fmt.Fprintln(os.Stderr, "  record <file> <duration>     Stream a recording as a voice note")
	fmt.Fprintln(os.Stderr, "  retry <temp-id>              Retry a failed send or upload")
	fmt.Fprintln(os.Stderr, "  dismiss <temp-id>            Drop a failed send or upload")
	fmt.Fprintln(os.Stderr, "  older                        Load older history")
	fmt.Fprintln(os.Stderr, "  unread                       Show unread badges per lead")
	fmt.Fprintln(os.Stderr, "  watch [namespace]            Stream daemon events")
}

func cmdStatus(ctx context.Context, c *rpc.Client, profileName string, out printer) {
	resp, err := c.Status(ctx)
	if grpcstatus.Code(err) == codes.Unavailable {
		if pid, ok, _ := lock.Holder(profile.Dir(profileName)); ok {
			fail(fmt.Errorf("daemon (PID %d) holds the profile lock but is not answering", pid))
		}
		fail(fmt.Errorf("leadchatd is not running for profile %q", profileName))
	}
	check(err)
	if out.json {
		out.value(resp, "")
		return
	}
	fmt.Printf("Profile: %s\n", resp.Profile)
	fmt.Printf("Status:  %s\n", resp.State)
	if resp.LastError != "" {
		fmt.Printf("Error:   %s\n", resp.LastError)
	}
	if resp.ActiveConversation != "" {
		fmt.Printf("Active:  %s\n", resp.ActiveConversation)
	}
	fmt.Printf("Uptime:  %dms\n", resp.UptimeMs)
}

func cmdProfiles(jsonOut bool) {
	entries, err := os.ReadDir(filepath.Join(profile.BaseDir(), "profiles"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fail(err)
	}
	type row struct {
		Name    string `json:"name"`
		Running bool   `json:"running"`
		PID     int    `json:"pid,omitempty"`
	}
	var rows []row
	for _, e := range entries {
		if !e.IsDir() || profile.ValidateName(e.Name()) != nil {
			continue
		}
		pid, ok, _ := lock.Holder(profile.Dir(e.Name()))
		rows = append(rows, row{Name: e.Name(), Running: ok, PID: pid})
	}
	if jsonOut {
		outputJSON(rows)
		return
	}
	if len(rows) == 0 {
		fmt.Println("No profiles found.")
		return
	}
	for _, r := range rows {
		state := "stopped"
		if r.Running {
			state = fmt.Sprintf("running (PID %d)", r.PID)
		}
		fmt.Printf("%-20s %s\n", r.Name, state)
	}
}

func cmdTemplate(ctx context.Context, c *rpc.Client, args []string, out printer) {
	fs := flag.NewFlagSet("template", flag.ExitOnError)
	lang := fs.String("lang", "", "template language")
	conv := fs.String("conversation", "", "conversation id (defaults to the lead's conversation)")
	to := fs.String("to", "", "recipient address when no conversation exists")
	lead := fs.String("lead", "", "lead id")
	channel := fs.String("channel", "", "channel (default whatsapp)")
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		fail(errors.New("usage: leadchatctl template [--lang l] [--conversation id | --lead id | --to addr] <template-id> [params...]"))
	}
	resp, err := c.SendTemplate(ctx, &rpc.TemplateRequest{
		ConversationID: *conv,
		Channel:        *channel,
		To:             *to,
		TemplateID:     fs.Arg(0),
		Language:       *lang,
		LeadID:         *lead,
		Params:         fs.Args()[1:],
	})
	check(err)
	out.message(resp.Message)
}

func cmdAttach(ctx context.Context, c *rpc.Client, path, caption string, out printer) {
	data, err := os.ReadFile(path)
	check(err)
	resp, err := c.Attach(ctx, &rpc.AttachRequest{
		Kind:     kindFor(path),
		Filename: filepath.Base(path),
		Data:     data,
		Caption:  caption,
	})
	check(err)
	out.upload(resp)
}

func cmdRecord(ctx context.Context, c *rpc.Client, path, duration string, out printer) {
	d, err := time.ParseDuration(duration)
	check(err)
	f, err := os.Open(path)
	check(err)
	defer func() { _ = f.Close() }()

	start, err := c.StartCapture(ctx, "audio")
	check(err)
	buf := make([]byte, captureChunk)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			check(c.AppendCapture(ctx, start.CaptureID, buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		check(err)
	}
	resp, err := c.StopCapture(ctx, &rpc.StopCaptureRequest{CaptureID: start.CaptureID, DurationMs: d.Milliseconds()})
	check(err)
	out.upload(resp)
}

func cmdWatch(c *rpc.Client, namespace string) {
	w, err := c.WatchEvents(context.Background(), namespace)
	check(err)
	for {
		e, err := w.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		check(err)
		outputJSON(e)
	}
}

func kindFor(path string) string {
	t := mime.TypeByExtension(filepath.Ext(path))
	switch {
	case strings.HasPrefix(t, "image/"):
		return "image"
	case strings.HasPrefix(t, "video/"):
		return "video"
	case strings.HasPrefix(t, "audio/"):
		return "audio"
	}
	return "document"
}

type printer struct {
	json bool
}

func (p printer) value(v any, format string, args ...any) {
	if p.json {
		outputJSON(v)
		return
	}
	fmt.Printf(format, args...)
}

func (p printer) message(m rpc.Message) {
	if p.json {
		outputJSON(m)
		return
	}
	fmt.Println(formatMessage(m))
}

func (p printer) upload(resp *rpc.UploadResponse) {
	if p.json {
		outputJSON(resp)
		return
	}
	if resp.Upload == nil {
		fmt.Println("recording too short, discarded")
		return
	}
	fmt.Printf("%s %s %s (%d bytes)\n", resp.Upload.TempID, resp.Upload.Kind, resp.Upload.State, resp.Upload.Size)
}

func (p printer) timeline(resp *rpc.TimelineResponse) {
	if p.json {
		outputJSON(resp)
		return
	}
	conv := resp.Conversation
	fmt.Printf("Conversation %s (%s) lead=%s\n", conv.ID, conv.Channel, conv.LeadID)
	switch {
	case conv.Blocked:
		fmt.Println("Contact is blocked")
	case resp.CanSendFreeform:
		fmt.Printf("Window open until %s\n", resp.WindowExpiresAt.Local().Format(time.DateTime))
	default:
		fmt.Println("Window expired: send a template to re-open")
	}
	if resp.HasMore {
		fmt.Println("... older messages available (leadchatctl older)")
	}
	for _, m := range resp.Messages {
		fmt.Println(formatMessage(m))
	}
}

func (p printer) unread(resp *rpc.UnreadResponse) {
	if p.json {
		outputJSON(resp)
		return
	}
	if len(resp.Badges) == 0 {
		fmt.Println("No unread messages.")
		return
	}
	for _, b := range resp.Badges {
		fmt.Printf("%-24s %3d", b.LeadID, b.Total)
		for ch, n := range b.Channels {
			if n > 0 {
				fmt.Printf("  %s:%d", ch, n)
			}
		}
		fmt.Println()
	}
}

func formatMessage(m rpc.Message) string {
	arrow := "<"
	if m.Direction == "OUTBOUND" {
		arrow = ">"
	}
	id := m.ID
	if id == "" {
		id = "tmp:" + m.TempID
	}
	body := m.Body
	if m.Kind != "TEXT" {
		body = strings.TrimSpace("[" + strings.ToLower(m.Kind) + "] " + body)
	}
	return fmt.Sprintf("%s %s %-9s %s %s", m.CreatedAt.Local().Format("01-02 15:04"), arrow, m.State, body, id)
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fail(errors.New("usage: leadchatctl " + usage))
	}
}

func check(err error) {
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	if s, ok := grpcstatus.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "error: %s\n", s.Message())
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
