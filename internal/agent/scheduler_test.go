package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/ordermind/internal/workflow"
)

type staticTasks struct {
	tasks []*workflow.Task
	err   error
}

func (s *staticTasks) Pending(context.Context) ([]*workflow.Task, error) {
	return s.tasks, s.err
}

type sentMessage struct {
	to, text string
}

type fakeMessenger struct {
	sent []sentMessage
	err  error
}

func (m *fakeMessenger) Send(chatID, text string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{chatID, text})
	return nil
}

func TestScheduler_RemindsOncePerWindow(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tasks := &staticTasks{tasks: []*workflow.Task{
		{ID: "old", Owner: "telegram:42", Status: workflow.StatusWaiting, CurrentStep: workflow.StepConfirmDelivery,
			MatchedRecordIDs: []string{"a", "b"}, UpdatedAt: base},
		{ID: "fresh", Owner: "telegram:42", Status: workflow.StatusWaiting, CurrentStep: workflow.StepConfirmDelivery,
			UpdatedAt: base.Add(50 * time.Minute)},
		{ID: "orphan", Status: workflow.StatusWaiting, CurrentStep: workflow.StepConfirmRemitted, UpdatedAt: base},
	}}
	gw := &fakeMessenger{}
	s := NewScheduler(tasks, gw, time.Hour, time.Minute)
	now := base.Add(61 * time.Minute)
	s.now = func() time.Time { return now }

	assert.Equal(t, 1, s.poll(context.Background()))
	require.Len(t, gw.sent, 1)
	assert.Equal(t, "telegram:42", gw.sent[0].to)
	assert.Contains(t, gw.sent[0].text, "old")
	assert.Contains(t, gw.sent[0].text, "confirm delivery")
	assert.Contains(t, gw.sent[0].text, "2 orders")

	// Within the same window nothing is repeated.
	now = now.Add(30 * time.Minute)
	assert.Equal(t, 0, s.poll(context.Background()))

	// fresh has now waited long enough, old gets a second reminder.
	now = now.Add(31 * time.Minute)
	assert.Equal(t, 2, s.poll(context.Background()))
	assert.Len(t, gw.sent, 3)
}

func TestScheduler_NewStepIsRemindedAgain(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	task := &workflow.Task{ID: "t1", Owner: "discord:9", Status: workflow.StatusWaiting,
		CurrentStep: workflow.StepConfirmDelivery, UpdatedAt: base}
	gw := &fakeMessenger{}
	s := NewScheduler(&staticTasks{tasks: []*workflow.Task{task}}, gw, time.Hour, 0)
	s.now = func() time.Time { return base.Add(2 * time.Hour) }

	assert.Equal(t, 1, s.poll(context.Background()))
	task.CurrentStep = workflow.StepConfirmRemitted
	assert.Equal(t, 1, s.poll(context.Background()))
	assert.Contains(t, gw.sent[1].text, "confirm the remittance")
	assert.Equal(t, 5*time.Minute, s.Interval)
}

func TestScheduler_FailuresAreRetried(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tasks := &staticTasks{tasks: []*workflow.Task{{ID: "t1", Owner: "telegram:1",
		CurrentStep: workflow.StepConfirmDelivery, UpdatedAt: base}}}
	gw := &fakeMessenger{err: errors.New("offline")}
	s := NewScheduler(tasks, gw, time.Hour, time.Minute)
	s.now = func() time.Time { return base.Add(2 * time.Hour) }

	assert.Equal(t, 0, s.poll(context.Background()))
	gw.err = nil
	assert.Equal(t, 1, s.poll(context.Background()))

	tasks.err = errors.New("db locked")
	assert.Equal(t, 0, s.poll(context.Background()))
}

func TestScheduler_ForgetsTasksThatLeavePending(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	first := &workflow.Task{ID: "t1", Owner: "telegram:1", CurrentStep: workflow.StepConfirmDelivery, UpdatedAt: base}
	second := &workflow.Task{ID: "t2", Owner: "telegram:1", CurrentStep: workflow.StepConfirmRemitted, UpdatedAt: base}
	tasks := &staticTasks{tasks: []*workflow.Task{first, second}}
	s := NewScheduler(tasks, &fakeMessenger{}, time.Hour, time.Minute)
	s.now = func() time.Time { return base.Add(2 * time.Hour) }

	assert.Equal(t, 2, s.poll(context.Background()))
	assert.Len(t, s.reminded, 2)

	// t1 completed; t2 moved on to a new step.
	second.CurrentStep = workflow.StepConfirmDelivery
	tasks.tasks = []*workflow.Task{second}
	assert.Equal(t, 1, s.poll(context.Background()))
	assert.Equal(t, map[string]bool{"t2/confirm_delivery": true}, keys(s.reminded))

	tasks.tasks = nil
	assert.Equal(t, 0, s.poll(context.Background()))
	assert.Empty(t, s.reminded)
}

func keys(m map[string]time.Time) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}
