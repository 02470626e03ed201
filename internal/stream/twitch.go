package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Stream is the live-stream record returned by the streaming platform.
type Stream struct {
	ID           string    `json:"id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameName     string    `json:"game_name"`
	Title        string    `json:"title"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	ThumbnailURL string    `json:"thumbnail_url"`
}

type Fetcher interface {
	// CurrentStream returns nil when the channel is offline.
	CurrentStream(ctx context.Context, login string) (*Stream, error)
}

const defaultTimeout = 15 * time.Second

type TwitchConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIBaseURL   string
	// Timeout bounds the token request and each API call. Zero means 15s.
	Timeout time.Duration
}

type TwitchClient struct {
	clientID string
	baseURL  string
	http     *http.Client
}

// NewTwitchClient builds a helix client. The app access token is fetched with
// the client-credentials grant and refreshed by the oauth2 transport. The token
// request runs on its own client so a stalled token endpoint times out too.
func NewTwitchClient(ctx context.Context, cfg TwitchConfig) *TwitchClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
	httpClient := cc.Client(tokenCtx)
	httpClient.Timeout = timeout
	return &TwitchClient{
		clientID: cfg.ClientID,
		baseURL:  strings.TrimRight(cfg.APIBaseURL, "/"),
		http:     httpClient,
	}
}

type streamsResponse struct {
	Data []Stream `json:"data"`
}

func (c *TwitchClient) CurrentStream(ctx context.Context, login string) (*Stream, error) {
	endpoint := c.baseURL + "/streams?user_login=" + url.QueryEscape(login)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-ID", c.clientID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch stream: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload streamsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode stream: %w", err)
	}
	if len(payload.Data) == 0 {
		return nil, nil
	}
	stream := payload.Data[0]
	if stream.ID == "" {
		return nil, errors.New("decode stream: missing stream id")
	}
	return &stream, nil
}
