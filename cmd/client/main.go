package main

import (
	"bufio"
	"chat-relay/auth"
	"chat-relay/client"
	"chat-relay/domain"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	RelayURL string `envconfig:"RELAY_URL" default:"http://localhost:8080"`
	WSPath   string `envconfig:"RELAY_WS_PATH" default:"/ws"`
	// TOKEN is used as is when set, otherwise one is minted from JWT_SECRET.
	Token     string `envconfig:"TOKEN"`
	JWTSecret string `envconfig:"JWT_SECRET"`
	JWTIssuer string `envconfig:"JWT_ISSUER" default:"chat-relay"`
	ID        string `envconfig:"CLIENT_ID" required:"true"`
	Kind      string `envconfig:"CLIENT_TYPE" default:"user"`
	PeerID    string `envconfig:"PEER_ID" required:"true"`
	PeerKind  string `envconfig:"PEER_TYPE" default:"employer"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"INFO"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run opens the conversation with the peer, then sends every stdin line
// and prints what the relay pushes back.
func run() (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	me := domain.NewIdentity(domain.Kind(config.Kind), config.ID)
	peer := domain.NewIdentity(domain.Kind(config.PeerKind), config.PeerID)
	if err := domain.ValidateIdentity(me); err != nil {
		return exitConfig, err
	}
	tokens, err := tokenSource(config, me)
	if err != nil {
		return exitConfig, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{
		BackendURL:   config.RelayURL,
		WebSocketURL: client.WebSocketURL(config.RelayURL, config.WSPath),
	}, tokens, log)

	conversation, err := c.API().StartConversation(ctx, peer)
	if err != nil {
		return exitRuntime, fmt.Errorf("unable to open conversation with %s: %w", peer, err)
	}
	c.OnMessage(func(m domain.Message) {
		style := color.Cyan
		if m.Sender == me {
			style = color.Green
		}
		fmt.Println(style.Sprintf("[%s] %s: %s", m.CreatedAt.Format(time.Kitchen), m.Sender.ID, m.Content))
	})
	c.OnNotification(func(n domain.Notification) {
		if !n.Read {
			fmt.Println(color.Yellow.Sprintf("🔔 %s", n.Text))
		}
	})
	c.OnError(func(e domain.ErrorPayload) {
		fmt.Println(color.Red.Sprintf("✗ %s: %s", e.Code, e.Message))
	})

	errChan := make(chan error, 1)
	go func() { errChan <- c.Run(ctx) }()
	go readInput(ctx, c, conversation.ID, peer)

	color.Bold.Printf("Chatting with %s in %s (Ctrl+C to quit)\n", peer, conversation.ID)
	select {
	case <-ctx.Done():
		<-errChan
		return exitOK, nil
	case err := <-errChan:
		if err != nil {
			return exitRuntime, err
		}
		return exitOK, nil
	}
}

func tokenSource(config Config, me domain.Identity) (client.TokenSource, error) {
	if config.Token != "" {
		return client.TokenFunc(func(context.Context) (string, error) { return config.Token, nil }), nil
	}
	if config.JWTSecret == "" {
		return nil, fmt.Errorf("either TOKEN or JWT_SECRET is required")
	}
	authenticator := auth.NewAuthenticator([]byte(config.JWTSecret), config.JWTIssuer)
	return client.TokenFunc(func(context.Context) (string, error) {
		return authenticator.GenerateToken(me, time.Hour)
	}), nil
}

func readInput(ctx context.Context, c *client.Client, conversationID string, peer domain.Identity) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() && ctx.Err() == nil {
		content := strings.TrimSpace(scanner.Text())
		if content == "" {
			continue
		}
		err := c.Send(domain.ChatSendPayload{
			ConversationID: conversationID,
			RecipientID:    peer.ID,
			RecipientType:  peer.Kind,
			Content:        content,
		})
		if err != nil {
			fmt.Println(color.Red.Sprintf("✗ not sent: %v", err))
		}
	}
}
