package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rahul/ordermind/internal/workflow"
)

// Messenger delivers a text to a conversation owner.
type Messenger interface {
	Send(chatID string, text string) error
}

// PendingTasks lists workflow tasks waiting for a human confirmation.
type PendingTasks interface {
	Pending(ctx context.Context) ([]*workflow.Task, error)
}

// Scheduler reminds task owners about workflow tasks that have waited for
// confirmation longer than After. Each task step is reminded at most once
// per Every.
type Scheduler struct {
	Tasks    PendingTasks
	Gateway  Messenger
	After    time.Duration
	Every    time.Duration
	Interval time.Duration

	mu       sync.Mutex
	reminded map[string]time.Time
	now      func() time.Time
}

func NewScheduler(tasks PendingTasks, gateway Messenger, after, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		Tasks:    tasks,
		Gateway:  gateway,
		After:    after,
		Every:    after,
		Interval: interval,
		reminded: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Println("Confirmation reminder scheduler started...")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll sends due reminders and returns how many were sent.
func (s *Scheduler) poll(ctx context.Context) int {
	tasks, err := s.Tasks.Pending(ctx)
	if err != nil {
		log.Printf("Error polling pending tasks: %v", err)
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Forget steps that are no longer pending.
	live := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		live[reminderKey(t)] = true
	}
	for key := range s.reminded {
		if !live[key] {
			delete(s.reminded, key)
		}
	}

	now := s.now()
	sent := 0
	for _, t := range tasks {
		if t.Owner == "" || now.Sub(t.UpdatedAt) < s.After {
			continue
		}
		key := reminderKey(t)
		if last, ok := s.reminded[key]; ok && now.Sub(last) < s.Every {
			continue
		}

		text := fmt.Sprintf("⏰ Remittance task %s is waiting for you to %s (%d orders, waiting since %s).\n"+
			"Reply \"confirm %s\" after checking, or ask for its status.",
			t.ID, stepPhrase(t.CurrentStep), t.MatchedCount(), t.UpdatedAt.Format(time.RFC822), t.ID)
		if s.Gateway != nil {
			if err := s.Gateway.Send(t.Owner, text); err != nil {
				log.Printf("Error reminding %s about task %s: %v", t.Owner, t.ID, err)
				continue
			}
		}
		s.reminded[key] = now
		sent++
	}
	return sent
}

func reminderKey(t *workflow.Task) string {
	return t.ID + "/" + string(t.CurrentStep)
}

func stepPhrase(step workflow.Step) string {
	switch step {
	case workflow.StepConfirmDelivery:
		return "confirm delivery"
	case workflow.StepConfirmRemitted:
		return "confirm the remittance"
	}
	return string(step)
}
