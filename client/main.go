package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	grpcserver "match-chat/infrastructure/grpc/server"
	"match-chat/infrastructure/wire"
	"match-chat/projection"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=localhost:9090"`
	RoomID        string `env:"CHAT_ROOM_ID,required=true"`
	IdentityID    string `env:"CHAT_IDENTITY_ID,required=true"`
	Token         string `env:"CHAT_TOKEN"`
	LogLevel      string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run joins a match room over gRPC, prints what happens in it and posts
// every stdin line. "/insight ..." and "/discussion ..." pick a category,
// "/history" asks for the latest posts.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if config.Token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+config.Token)
	}

	conn, err := grpc.NewClient(config.ServerAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	stream, err := grpcserver.OpenSession(ctx, conn)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open stream: %w", err)
	}
	payload, _ := json.Marshal(wire.JoinPayload{RoomID: config.RoomID, IdentityID: config.IdentityID})
	if err := stream.Send(&wire.Frame{Type: wire.TypeJoin, RequestID: "join", Payload: payload}); err != nil {
		return exitRuntime, fmt.Errorf("failed to join: %w", err)
	}
	log.Info(fmt.Sprintf(">>> Connected to %s as %s, match %s (Ctrl+C to quit)",
		config.ServerAddress, config.IdentityID, config.RoomID))

	go readInput(stream, os.Stdin)

	timeline := projection.NewTimeline()
	for {
		frame, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("stream error: %w", err)
		}
		if err := timeline.Apply(*frame); err != nil {
			log.Warn("Unreadable frame", "type", frame.Type, "error", err)
			continue
		}
		fmt.Println(render(frame, timeline))
	}
}

func readInput(stream grpcserver.SessionClient, in io.Reader) {
	scanner := bufio.NewScanner(in)
	n := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n++
		frame := command(line, fmt.Sprintf("req-%d", n))
		if err := stream.Send(frame); err != nil {
			return
		}
	}
	_ = stream.CloseSend()
}

func command(line, requestID string) *wire.Frame {
	if line == "/history" {
		return &wire.Frame{Type: wire.TypeHistory, RequestID: requestID}
	}
	category := ""
	for _, c := range []string{"insight", "discussion", "banter"} {
		if rest, ok := strings.CutPrefix(line, "/"+c+" "); ok {
			category, line = c, rest
			break
		}
	}
	payload, _ := json.Marshal(wire.SendPayload{Content: line, Category: category})
	return &wire.Frame{Type: wire.TypeSend, RequestID: requestID, Payload: payload}
}

func render(frame *wire.Frame, timeline *projection.Timeline) string {
	switch frame.Type {
	case "joined", "memberArrived", "memberDeparted":
		var p wire.MembershipPayload
		_ = json.Unmarshal(frame.Payload, &p)
		names := make([]string, 0, len(timeline.Members))
		for _, m := range timeline.Members {
			names = append(names, m.DisplayName)
		}
		who := ""
		if p.Member != nil {
			who = p.Member.DisplayName + " "
		}
		return color.Cyan.Sprintf("* %s%s, present: %s", who, frame.Type, strings.Join(names, ", "))
	case "newMessage":
		var p wire.NewMessagePayload
		_ = json.Unmarshal(frame.Payload, &p)
		m := p.Message
		return fmt.Sprintf("[%s] %s %s: %s", m.CreatedAt.Local().Format(time.TimeOnly),
			color.Yellow.Sprint(m.Category), color.Bold.Sprint(m.Author.DisplayName), m.Content)
	case "history":
		var p wire.HistoryPagePayload
		_ = json.Unmarshal(frame.Payload, &p)
		var b strings.Builder
		for i := len(p.Messages) - 1; i >= 0; i-- {
			m := p.Messages[i]
			fmt.Fprintf(&b, "  [%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.AuthorID, m.Content)
		}
		return color.Gray.Sprintf("history (%d)\n%s", len(p.Messages), b.String())
	case "error":
		var p wire.ErrorPayload
		_ = json.Unmarshal(frame.Payload, &p)
		return color.Red.Sprintf("! %s: %s", p.Kind, p.Detail)
	default:
		return color.Gray.Sprintf("%s %s", frame.Type, string(frame.Payload))
	}
}
