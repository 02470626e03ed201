package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedFetcher struct {
	results []*Stream
	errs    []error
	calls   int
}

func (f *scriptedFetcher) CurrentStream(context.Context, string) (*Stream, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.results[i], nil
}

type recordingAnnouncer struct {
	got []Announcement
	err error
}

func (a *recordingAnnouncer) Announce(_ context.Context, ann Announcement) error {
	a.got = append(a.got, ann)
	return a.err
}

type countingCounter map[string]int

func (c countingCounter) Increment(_ context.Context, name string) { c[name]++ }

func live(id string) *Stream {
	return &Stream{ID: id, Title: "Grinding", ViewerCount: 12, ThumbnailURL: "https://img/{width}x{height}.jpg"}
}

func runPolls(t *testing.T, results []*Stream) (*Watcher, *recordingAnnouncer, countingCounter) {
	t.Helper()
	fetcher := &scriptedFetcher{results: results}
	announcer := &recordingAnnouncer{}
	counter := countingCounter{}
	w := NewWatcher("Kymera_Gaming", 0, fetcher, announcer, counter, zap.NewNop())
	for range results {
		require.NoError(t, w.Poll(context.Background()))
	}
	return w, announcer, counter
}

func TestSameStreamAnnouncedOnce(t *testing.T) {
	w, announcer, counter := runPolls(t, []*Stream{live("A"), live("A"), live("A")})
	require.Len(t, announcer.got, 1)
	require.Equal(t, 1, counter["streams"])
	require.Equal(t, State{IsLive: true, LastStreamID: "A"}, w.State())
}

func TestNewStreamIDAnnouncesAgain(t *testing.T) {
	_, announcer, _ := runPolls(t, []*Stream{live("A"), live("A"), live("B")})
	require.Len(t, announcer.got, 2)
	require.Equal(t, "A", announcer.got[0].StreamID)
	require.Equal(t, "B", announcer.got[1].StreamID)
}

func TestOfflineResetsState(t *testing.T) {
	w, announcer, _ := runPolls(t, []*Stream{live("A"), nil, live("A")})
	require.Len(t, announcer.got, 2)
	require.True(t, w.State().IsLive)

	w2, _, _ := runPolls(t, []*Stream{live("A"), nil})
	require.Equal(t, State{}, w2.State())
}

func TestPollErrorLeavesStateUntouched(t *testing.T) {
	fetcher := &scriptedFetcher{
		results: []*Stream{live("A"), nil, nil},
		errs:    []error{nil, errors.New("boom"), nil},
	}
	announcer := &recordingAnnouncer{}
	w := NewWatcher("Kymera_Gaming", 0, fetcher, announcer, nil, zap.NewNop())

	require.NoError(t, w.Poll(context.Background()))
	require.Error(t, w.Poll(context.Background()))
	require.Equal(t, State{IsLive: true, LastStreamID: "A"}, w.State())
	require.NoError(t, w.Poll(context.Background()))
	require.Equal(t, State{}, w.State())
}

func TestAnnounceFailureKeepsTransition(t *testing.T) {
	fetcher := &scriptedFetcher{results: []*Stream{live("A"), live("A")}}
	announcer := &recordingAnnouncer{err: errors.New("discord down")}
	w := NewWatcher("Kymera_Gaming", 0, fetcher, announcer, nil, zap.NewNop())

	require.NoError(t, w.Poll(context.Background()))
	require.NoError(t, w.Poll(context.Background()))
	require.Len(t, announcer.got, 1)
	require.Equal(t, "A", w.State().LastStreamID)
}

func TestAnnouncementPayload(t *testing.T) {
	_, announcer, _ := runPolls(t, []*Stream{live("A")})
	got := announcer.got[0]
	require.Equal(t, DefaultGame, got.Game)
	require.Equal(t, "https://img/1280x720.jpg", got.ThumbnailURL)
	require.Equal(t, "https://twitch.tv/Kymera_Gaming", got.URL)
	require.Equal(t, 12, got.Viewers)
}

type stalledFetcher struct {
	entered chan struct{}
	release chan struct{}
}

func (f *stalledFetcher) CurrentStream(ctx context.Context, _ string) (*Stream, error) {
	f.entered <- struct{}{}
	select {
	case <-f.release:
		return live("A"), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestStateReadableDuringStalledPoll(t *testing.T) {
	fetcher := &stalledFetcher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	announcer := &recordingAnnouncer{}
	w := NewWatcher("Kymera_Gaming", time.Minute, fetcher, announcer, countingCounter{}, zap.NewNop())

	polled := make(chan error, 1)
	go func() { polled <- w.Poll(context.Background()) }()
	<-fetcher.entered

	read := make(chan State, 1)
	go func() { read <- w.State() }()
	select {
	case state := <-read:
		require.False(t, state.IsLive)
	case <-time.After(2 * time.Second):
		t.Fatalf("State blocked behind an in-flight poll")
	}

	close(fetcher.release)
	require.NoError(t, <-polled)
	require.Equal(t, State{IsLive: true, LastStreamID: "A"}, w.State())
	require.Len(t, announcer.got, 1)
}

func TestStalledPollGivesUpAtDeadline(t *testing.T) {
	fetcher := &stalledFetcher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	w := NewWatcher("Kymera_Gaming", time.Minute, fetcher, &recordingAnnouncer{}, countingCounter{}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, w.Poll(ctx), context.DeadlineExceeded)
	require.Equal(t, State{}, w.State())
}
