package stream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"kymera-bot/internal/stats"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultGame     = "Just Chatting"
	thumbnailWidth  = "1280"
	thumbnailHeight = "720"
)

// State is the last observed live status. IsLive holds iff LastStreamID is set.
type State struct {
	IsLive       bool
	LastStreamID string
}

type Announcement struct {
	StreamID     string
	Channel      string
	URL          string
	Title        string
	Game         string
	Viewers      int
	ThumbnailURL string
	StartedAt    time.Time
}

type Announcer interface {
	Announce(ctx context.Context, a Announcement) error
}

// Counter receives the streams-announced increment.
type Counter interface {
	Increment(ctx context.Context, name string)
}

type Watcher struct {
	login     string
	interval  time.Duration
	fetcher   Fetcher
	announcer Announcer
	counter   Counter
	logger    *zap.Logger

	mu    sync.Mutex
	state State

	cron *cron.Cron
}

func NewWatcher(login string, interval time.Duration, fetcher Fetcher, announcer Announcer, counter Counter, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = 120 * time.Second
	}
	return &Watcher{
		login:     login,
		interval:  interval,
		fetcher:   fetcher,
		announcer: announcer,
		counter:   counter,
		logger:    logger,
	}
}

func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Poll runs one status check. On error the state is left untouched. The lock
// is held only for the state transition, never across the remote calls.
func (w *Watcher) Poll(ctx context.Context) error {
	stream, err := w.fetcher.CurrentStream(ctx, w.login)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if stream == nil {
		w.state = State{}
		w.mu.Unlock()
		return nil
	}
	if stream.ID == w.state.LastStreamID {
		w.mu.Unlock()
		return nil
	}
	w.state = State{IsLive: true, LastStreamID: stream.ID}
	w.mu.Unlock()

	if w.counter != nil {
		w.counter.Increment(ctx, stats.Streams)
	}
	if err := w.announcer.Announce(ctx, w.announcement(stream)); err != nil {
		w.logger.Warn("stream announcement failed", zap.String("stream_id", stream.ID), zap.Error(err))
	}
	return nil
}

func (w *Watcher) announcement(stream *Stream) Announcement {
	game := stream.GameName
	if game == "" {
		game = DefaultGame
	}
	thumb := strings.NewReplacer("{width}", thumbnailWidth, "{height}", thumbnailHeight).Replace(stream.ThumbnailURL)
	return Announcement{
		StreamID:     stream.ID,
		Channel:      w.login,
		URL:          ChannelURL(w.login),
		Title:        stream.Title,
		Game:         game,
		Viewers:      stream.ViewerCount,
		ThumbnailURL: thumb,
		StartedAt:    stream.StartedAt,
	}
}

func ChannelURL(login string) string {
	return "https://twitch.tv/" + login
}

// Start schedules Poll at the fixed interval and runs one poll right away.
// A tick that fires while the previous poll is still running is skipped.
func (w *Watcher) Start() error {
	if w.cron != nil {
		return nil
	}
	logger := cronLogger{w.logger.Sugar()}
	job := cron.NewChain(cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(w.tick))
	c := cron.New(cron.WithLogger(logger))
	if _, err := c.AddJob(fmt.Sprintf("@every %s", w.interval), job); err != nil {
		return fmt.Errorf("schedule stream poll: %w", err)
	}
	w.cron = c
	c.Start()
	go job.Run()
	w.logger.Info("stream watcher started", zap.String("channel", w.login), zap.Duration("interval", w.interval))
	return nil
}

func (w *Watcher) Stop(ctx context.Context) {
	if w.cron == nil {
		return
	}
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (w *Watcher) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()
	if err := w.Poll(ctx); err != nil {
		w.logger.Warn("stream poll failed", zap.String("channel", w.login), zap.Error(err))
	}
}

// cronLogger routes cron's scheduler messages into zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
