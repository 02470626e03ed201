package music

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"kymera-bot/internal/utils"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// CommandRunner runs an external program and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// YouTubeResolver searches with the YouTube Data API when an API key is set
// and falls back to yt-dlp search otherwise. Stream URLs always come from yt-dlp.
type YouTubeResolver struct {
	ytdlp   string
	search  *youtube.Service
	run     CommandRunner
	logger  *zap.Logger
	timeout time.Duration
}

func NewYouTubeResolver(ctx context.Context, apiKey, ytdlpPath string, logger *zap.Logger) (*YouTubeResolver, error) {
	r := &YouTubeResolver{
		ytdlp:   ytdlpPath,
		run:     execRunner,
		logger:  logger,
		timeout: 30 * time.Second,
	}
	if apiKey != "" {
		svc, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
		if err != nil {
			return nil, fmt.Errorf("youtube client: %w", err)
		}
		r.search = svc
	}
	return r, nil
}

type ytdlpInfo struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	WebpageURL string  `json:"webpage_url"`
	Duration   float64 `json:"duration"`
}

func (r *YouTubeResolver) Resolve(ctx context.Context, query string) (Song, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Song{}, ErrNoResults
	}
	if utils.IsURL(query) {
		normalized, host, err := utils.NormalizeURL(query)
		if err != nil {
			return Song{}, fmt.Errorf("parse url: %w", err)
		}
		if !utils.IsYouTubeHost(host) {
			r.logger.Debug("resolving non-youtube link through yt-dlp", zap.String("host", host))
		}
		return r.lookup(ctx, normalized)
	}
	if r.search != nil {
		song, err := r.searchAPI(ctx, query)
		if err == nil {
			return song, nil
		}
		if errors.Is(err, ErrNoResults) {
			return Song{}, err
		}
		r.logger.Warn("youtube api search failed, using yt-dlp", zap.Error(err))
	}
	return r.lookup(ctx, "ytsearch1:"+query)
}

func (r *YouTubeResolver) searchAPI(ctx context.Context, query string) (Song, error) {
	resp, err := r.search.Search.List([]string{"id", "snippet"}).
		Q(query).
		Type("video").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return Song{}, err
	}
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		title := item.Id.VideoId
		if item.Snippet != nil && item.Snippet.Title != "" {
			title = item.Snippet.Title
		}
		return Song{Title: title, URL: "https://www.youtube.com/watch?v=" + item.Id.VideoId}, nil
	}
	return Song{}, ErrNoResults
}

func (r *YouTubeResolver) lookup(ctx context.Context, target string) (Song, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.run(ctx, r.ytdlp, "--dump-json", "--no-playlist", "--skip-download", target)
	if err != nil {
		return Song{}, err
	}
	line := firstLine(out)
	if line == "" {
		return Song{}, ErrNoResults
	}
	var info ytdlpInfo
	if err := json.Unmarshal([]byte(line), &info); err != nil {
		return Song{}, fmt.Errorf("decode yt-dlp output: %w", err)
	}
	song := Song{
		Title:    info.Title,
		URL:      info.WebpageURL,
		Duration: time.Duration(info.Duration * float64(time.Second)),
	}
	if song.URL == "" && info.ID != "" {
		song.URL = "https://www.youtube.com/watch?v=" + info.ID
	}
	if song.URL == "" {
		return Song{}, ErrNoResults
	}
	if song.Title == "" {
		song.Title = song.URL
	}
	return song, nil
}

func (r *YouTubeResolver) StreamURL(ctx context.Context, song Song) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.run(ctx, r.ytdlp, "-f", "bestaudio/best", "-g", "--no-playlist", song.URL)
	if err != nil {
		return "", err
	}
	if line := firstLine(out); line != "" {
		return line, nil
	}
	return "", fmt.Errorf("no audio stream for %s", song.URL)
}

func firstLine(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line
		}
	}
	return ""
}
