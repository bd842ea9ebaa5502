package e2e

import (
	"bytes"
	"chat-relay/auth"
	"chat-relay/client"
	"chat-relay/domain"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type BaseRelaySuite struct {
	suite.Suite
	Config        Config
	authenticator *auth.Authenticator
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayURL == "" {
		s.T().Skip("RELAY_URL is not set")
	}
	s.Require().NotEmpty(s.Config.JWTSecret, "RELAY_JWT_SECRET is required to mint tokens")
	s.authenticator = auth.NewAuthenticator([]byte(s.Config.JWTSecret), s.Config.JWTIssuer)
}

// Header prints a colorized step header in the test logs
func (s *BaseRelaySuite) Header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

func (s *BaseRelaySuite) Tokens(identity domain.Identity) client.TokenSource {
	return client.TokenFunc(func(context.Context) (string, error) {
		return s.authenticator.GenerateToken(identity, 5*time.Minute)
	})
}

// HTTPClient logs every REST call, with bodies when E2E_DEBUG_JSON is enabled
func (s *BaseRelaySuite) HTTPClient(t *testing.T) *http.Client {
	return &http.Client{Timeout: 10 * time.Second, Transport: loggingTransport{t: t, debug: s.Config.DebugJSON}}
}

// WithClient runs a connected client for identity within a contextual test step
func (s *BaseRelaySuite) WithClient(name string, identity domain.Identity, fn func(ctx context.Context, c *client.Client)) {
	t := s.T()
	s.Header(t, name)
	c := client.New(client.Config{
		BackendURL:   s.Config.RelayURL,
		WebSocketURL: client.WebSocketURL(s.Config.RelayURL, s.Config.WSPath),
		HTTPClient:   s.HTTPClient(t),
	}, s.Tokens(identity), logs.GetLoggerFromLevel(slog.LevelInfo))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()
	s.Require().Eventually(c.Connected, 5*time.Second, 20*time.Millisecond, "client never connected to "+s.Config.RelayURL)

	fn(ctx, c)
}

type loggingTransport struct {
	t     *testing.T
	debug bool
}

func (l loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	var requestBody []byte
	if l.debug && r.Body != nil {
		requestBody, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(requestBody))
	}
	resp, err := http.DefaultTransport.RoundTrip(r)

	logBuilder := strings.Builder{}
	if err != nil {
		fmt.Fprintf(&logBuilder, "HTTP %s %s [error] in %v: %v", r.Method, r.URL.Path, time.Since(start), err)
		l.t.Log(logBuilder.String())
		return nil, err
	}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] in %v", r.Method, r.URL.Path, resp.StatusCode, time.Since(start))
	if l.debug {
		responseBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(responseBody))
		fmt.Fprintln(&logBuilder, "\nREQUEST:")
		fmt.Fprintln(&logBuilder, string(requestBody))
		fmt.Fprintln(&logBuilder, "RESPONSE:")
		fmt.Fprintln(&logBuilder, string(responseBody))
	}
	l.t.Log(logBuilder.String())
	return resp, nil
}
