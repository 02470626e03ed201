package music

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kymera-bot/internal/stats"

	"go.uber.org/zap"
)

var (
	ErrNotInVoice     = errors.New("join a voice channel first")
	ErrNothingPlaying = errors.New("nothing is playing")
	ErrNoResults      = errors.New("no results found")
	ErrQueueFull      = errors.New("queue is full")
)

type Song struct {
	Title       string
	URL         string
	Duration    time.Duration
	RequestedBy string
}

// Resolver turns user input into songs and songs into playable audio URLs.
type Resolver interface {
	Resolve(ctx context.Context, query string) (Song, error)
	StreamURL(ctx context.Context, song Song) (string, error)
}

type Transport interface {
	Join(ctx context.Context, guildID, channelID string) (Connection, error)
}

// Connection plays one audio URL at a time. Play returns when the track ends
// or ctx is cancelled.
type Connection interface {
	Play(ctx context.Context, streamURL string) error
	Disconnect() error
}

type Counter interface {
	Increment(ctx context.Context, name string)
}

// Notifier is told whenever a song starts in a guild.
type Notifier func(guildID, textChannelID string, song Song)

type PlayRequest struct {
	GuildID        string
	TextChannelID  string
	VoiceChannelID string
	Query          string
	RequestedBy    string
}

type session struct {
	guildID        string
	textChannelID  string
	voiceChannelID string
	conn           Connection
	songs          []Song
	cancelTrack    context.CancelFunc
	stopped        bool
	done           chan struct{}
}

type Manager struct {
	resolver  Resolver
	transport Transport
	counter   Counter
	logger    *zap.Logger
	maxQueue  int
	notify    Notifier

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(resolver Resolver, transport Transport, counter Counter, maxQueue int, logger *zap.Logger) *Manager {
	return &Manager{
		resolver:  resolver,
		transport: transport,
		counter:   counter,
		logger:    logger,
		maxQueue:  maxQueue,
		sessions:  make(map[string]*session),
	}
}

func (m *Manager) SetNotifier(notify Notifier) {
	m.notify = notify
}

// Play resolves the query and queues it, joining voice when the guild has no
// session yet. Position 0 means the song starts right away.
func (m *Manager) Play(ctx context.Context, req PlayRequest) (Song, int, error) {
	if req.VoiceChannelID == "" {
		return Song{}, 0, ErrNotInVoice
	}
	song, err := m.resolver.Resolve(ctx, req.Query)
	if err != nil {
		return Song{}, 0, err
	}
	song.RequestedBy = req.RequestedBy

	m.mu.Lock()
	for {
		s, ok := m.sessions[req.GuildID]
		if !ok {
			break
		}
		if !s.stopped {
			if m.maxQueue > 0 && len(s.songs) >= m.maxQueue {
				m.mu.Unlock()
				return Song{}, 0, ErrQueueFull
			}
			s.songs = append(s.songs, song)
			position := len(s.songs) - 1
			m.mu.Unlock()
			m.count(ctx)
			return song, position, nil
		}
		// The previous session still owns the guild's voice connection.
		done := s.done
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return Song{}, 0, ctx.Err()
		}
		m.mu.Lock()
	}
	s := &session{
		guildID:        req.GuildID,
		textChannelID:  req.TextChannelID,
		voiceChannelID: req.VoiceChannelID,
		songs:          []Song{song},
		done:           make(chan struct{}),
	}
	m.sessions[req.GuildID] = s
	m.mu.Unlock()

	conn, err := m.transport.Join(ctx, req.GuildID, req.VoiceChannelID)
	if err != nil {
		m.mu.Lock()
		if m.sessions[req.GuildID] == s {
			delete(m.sessions, req.GuildID)
		}
		m.mu.Unlock()
		close(s.done)
		return Song{}, 0, fmt.Errorf("join voice: %w", err)
	}
	s.conn = conn
	m.count(ctx)
	go m.run(s)
	return song, 0, nil
}

// Skip ends the current song and returns it. A song still waiting on the
// voice join cannot be skipped.
func (m *Manager) Skip(guildID string) (Song, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[guildID]
	if !ok || s.stopped || len(s.songs) == 0 || s.cancelTrack == nil {
		return Song{}, ErrNothingPlaying
	}
	s.cancelTrack()
	return s.songs[0], nil
}

// Stop clears the queue, leaves voice and waits for the player to exit. The
// session stays registered until its connection is closed.
func (m *Manager) Stop(ctx context.Context, guildID string) error {
	m.mu.Lock()
	s, ok := m.sessions[guildID]
	if !ok {
		m.mu.Unlock()
		return ErrNothingPlaying
	}
	alreadyStopped := s.stopped
	s.stopped = true
	s.songs = nil
	if s.cancelTrack != nil {
		s.cancelTrack()
	}
	m.mu.Unlock()

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if alreadyStopped {
		return ErrNothingPlaying
	}
	return nil
}

func (m *Manager) Queue(guildID string) []Song {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[guildID]
	if !ok {
		return nil
	}
	return append([]Song(nil), s.songs...)
}

func (m *Manager) NowPlaying(guildID string) (Song, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[guildID]
	if !ok || len(s.songs) == 0 {
		return Song{}, false
	}
	return s.songs[0], true
}

func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown stops every session.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	guilds := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		guilds = append(guilds, id)
	}
	m.mu.Unlock()

	for _, id := range guilds {
		if err := m.Stop(ctx, id); err != nil && !errors.Is(err, ErrNothingPlaying) {
			m.logger.Warn("music shutdown", zap.String("guild_id", id), zap.Error(err))
		}
	}
}

func (m *Manager) run(s *session) {
	defer m.release(s)

	for {
		m.mu.Lock()
		if s.stopped || len(s.songs) == 0 {
			s.stopped = true
			m.mu.Unlock()
			return
		}
		song := s.songs[0]
		trackCtx, cancel := context.WithCancel(context.Background())
		s.cancelTrack = cancel
		m.mu.Unlock()

		if m.notify != nil {
			m.notify(s.guildID, s.textChannelID, song)
		}
		if err := m.playSong(trackCtx, s, song); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("playback failed", zap.String("guild_id", s.guildID), zap.String("song", song.Title), zap.Error(err))
		}
		cancel()

		m.mu.Lock()
		s.cancelTrack = nil
		if !s.stopped && len(s.songs) > 0 {
			s.songs = s.songs[1:]
		}
		m.mu.Unlock()
	}
}

// release closes the voice connection, then drops the session entry.
func (m *Manager) release(s *session) {
	if s.conn != nil {
		if err := s.conn.Disconnect(); err != nil {
			m.logger.Warn("voice disconnect failed", zap.String("guild_id", s.guildID), zap.Error(err))
		}
	}
	m.mu.Lock()
	if m.sessions[s.guildID] == s {
		delete(m.sessions, s.guildID)
	}
	m.mu.Unlock()
	close(s.done)
}

func (m *Manager) playSong(ctx context.Context, s *session, song Song) error {
	streamURL, err := m.resolver.StreamURL(ctx, song)
	if err != nil {
		return fmt.Errorf("resolve stream: %w", err)
	}
	return s.conn.Play(ctx, streamURL)
}

func (m *Manager) count(ctx context.Context) {
	if m.counter != nil {
		m.counter.Increment(ctx, stats.Songs)
	}
}
