// Package reminders schedules "your event is soon" pushes.
package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/components/push"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/metrics"
)

// Scheduler fires a reminder for userID at fireTime. Callers do not track
// the outcome.
type Scheduler interface {
	Schedule(ctx context.Context, userID string, fireTime time.Time, title, body string)
}

// Body is the reminder text for an event.
func Body(title string) string {
	return fmt.Sprintf("Your event \"%s\" is happening soon!", title)
}

// FireTime is notifyBefore minutes ahead of the event.
func FireTime(date time.Time, notifyBeforeMinutes int) time.Time {
	return date.Add(-time.Duration(notifyBeforeMinutes) * time.Minute)
}

// ForEvent schedules the standard reminder for an event. s may be nil.
func ForEvent(ctx context.Context, s Scheduler, userID, title string, date time.Time, notifyBeforeMinutes int) {
	if s == nil {
		return
	}
	s.Schedule(ctx, userID, FireTime(date, notifyBeforeMinutes), title, Body(title))
}

// LocalScheduler keeps reminders as in-process timers and delivers them
// through a push.Publisher. Pending reminders do not survive a restart.
type LocalScheduler struct {
	publisher push.Publisher
	log       *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

func NewLocalScheduler(publisher push.Publisher, log *slog.Logger) *LocalScheduler {
	log = logutil.NoopIfNil(log)
	return &LocalScheduler{
		publisher: publisher,
		log:       log,
		now:       time.Now,
		timers:    make(map[*time.Timer]struct{}),
	}
}

// Schedule implements Scheduler. Zero or past fire times are ignored.
func (s *LocalScheduler) Schedule(ctx context.Context, userID string, fireTime time.Time, title, body string) {
	log := s.log
	if l, ok := appctx.LoggerFromContext(ctx); ok {
		log = l
	}
	if fireTime.IsZero() {
		return
	}
	delay := fireTime.Sub(s.now())
	if delay <= 0 {
		log.Debug("reminder time already passed, skipping", "user_id", userID, "fire_time", fireTime)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, timer)
		s.mu.Unlock()
		s.fire(userID, title, body)
	})
	s.timers[timer] = struct{}{}
	log.Debug("reminder scheduled", "user_id", userID, "fire_time", fireTime)
}

func (s *LocalScheduler) fire(userID, title, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.publisher.Publish(ctx, userID, push.Message{
		Kind:  push.KindReminder,
		Title: title,
		Body:  body,
	})
	metrics.RemindersFired.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		s.log.Warn("reminder delivery failed", "user_id", userID, "error", err)
	}
}

// Pending returns the number of reminders waiting to fire.
func (s *LocalScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close stops all pending timers. Later Schedule calls are ignored.
func (s *LocalScheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[*time.Timer]struct{})
	s.closed = true
	return nil
}

var _ Scheduler = (*LocalScheduler)(nil)
