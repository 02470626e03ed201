package stats

import (
	"context"
	"sort"
	"time"

	"kymera-bot/internal/storage"

	"go.uber.org/zap"
)

const (
	Messages = "messages"
	Commands = "commands"
	Joins    = "joins"
	Streams  = "streams"
	Kicks    = "kicks"
	Bans     = "bans"
	Warns    = "warns"
	Songs    = "songs"
)

// Names lists every tracked counter in display order.
var Names = []string{Messages, Commands, Joins, Streams, Kicks, Bans, Warns, Songs}

type Service struct {
	store  *storage.Store
	logger *zap.Logger
	bootAt time.Time
	now    func() time.Time
}

func New(store *storage.Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger, bootAt: time.Now(), now: time.Now}
}

// Init records the tracking start time on first run.
func (s *Service) Init(ctx context.Context) error {
	_, err := s.store.EnsureStartTime(ctx, s.now())
	return err
}

// Increment bumps a counter. Failures are logged, never returned.
func (s *Service) Increment(ctx context.Context, name string) {
	if s == nil || s.store == nil {
		return
	}
	if _, err := s.store.IncrementCounter(ctx, name); err != nil {
		s.logger.Warn("counter increment failed", zap.String("counter", name), zap.Error(err))
	}
}

type Snapshot struct {
	Counters  map[string]int64
	StartTime time.Time
	Uptime    time.Duration
}

func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	counters, err := s.store.Counters(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	for _, name := range Names {
		if _, ok := counters[name]; !ok {
			counters[name] = 0
		}
	}
	start, ok, err := s.store.StartTime(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if !ok {
		start = s.bootAt
	}
	return Snapshot{
		Counters:  counters,
		StartTime: start,
		Uptime:    s.now().Sub(s.bootAt),
	}, nil
}

type ActionCount struct {
	Action string
	Count  int
}

type Report struct {
	Total    int
	ByAction []ActionCount
}

// Report groups the guild's moderation audit entries since the given time.
func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	logs, err := s.store.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	byAction := make(map[string]int)
	report := Report{}
	for _, log := range logs {
		report.Total++
		byAction[log.Action]++
	}
	for action, count := range byAction {
		report.ByAction = append(report.ByAction, ActionCount{Action: action, Count: count})
	}
	sort.Slice(report.ByAction, func(i, j int) bool {
		if report.ByAction[i].Count != report.ByAction[j].Count {
			return report.ByAction[i].Count > report.ByAction[j].Count
		}
		return report.ByAction[i].Action < report.ByAction[j].Action
	})
	return report, nil
}
