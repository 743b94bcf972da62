package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slotStarts(slots []model.Slot) []int {
	starts := make([]int, 0, len(slots))
	for _, s := range slots {
		starts = append(starts, s.StartTime)
	}
	return starts
}

func TestListAvailableSlots(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.declareMonday(t)

	slots, err := env.slots.ListAvailableSlots(ctx, env.tutor.UserID, monday)
	require.NoError(t, err)
	assert.Equal(t, []int{540, 570, 600, 630, 660, 690}, slotStarts(slots))
	for _, s := range slots {
		assert.Equal(t, s.StartTime+model.SlotGranularity, s.EndTime)
	}

	env.book(t, env.student, 600, 60)

	slots, err = env.slots.ListAvailableSlots(ctx, env.tutor.UserID, monday)
	require.NoError(t, err)
	assert.Equal(t, []int{540, 570, 660, 690}, slotStarts(slots))

	// в другие дни доступности нет
	slots, err = env.slots.ListAvailableSlots(ctx, env.tutor.UserID, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestListAvailableSlotsNeverOverlapLessons(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.availability.Replace(ctx, env.tutor, env.tutor.UserID, model.WeekSnapshot{
		time.Monday: {{Start: 480, End: 780}, {Start: 840, End: 1080}},
	})
	require.NoError(t, err)

	booked := []struct{ start, duration int }{
		{480, 90},
		{630, 30},
		{720, 60},
		{870, 120},
	}
	for _, b := range booked {
		env.book(t, env.student, b.start, b.duration)
	}

	cancelled := env.book(t, env.other, 1020, 60)
	_, err = env.booking.Cancel(ctx, env.other, cancelled.ID, "")
	require.NoError(t, err)

	lessons, err := env.lessons.ListActiveByTutorDate(ctx, env.tutor.UserID, monday)
	require.NoError(t, err)

	slots, err := env.slots.ListAvailableSlots(ctx, env.tutor.UserID, monday)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	for _, s := range slots {
		r := model.TimeRange{Start: s.StartTime, End: s.EndTime}
		for _, l := range lessons {
			assert.False(t, l.Range().Overlaps(r), "slot %s overlaps lesson %s", r, l.Range())
		}
	}

	// отменённое занятие окно не занимает
	assert.Contains(t, slotStarts(slots), 1020)
	assert.Contains(t, slotStarts(slots), 1050)
}

func TestListAvailableSlotsToday(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want []int
	}{
		{"before opening", monday.Add(7 * time.Hour), []int{540, 570, 600, 630, 660, 690}},
		{"lead cuts first slots", monday.Add(9*time.Hour + 20*time.Minute), []int{630, 660, 690}},
		{"exact boundary", monday.Add(9*time.Hour + 30*time.Minute), []int{630, 660, 690}},
		{"seconds round up", monday.Add(9*time.Hour + 30*time.Minute + time.Second), []int{660, 690}},
		{"too late", monday.Add(11 * time.Hour), []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.declareMonday(t)
			env.clock.Set(tt.now)

			slots, err := env.slots.ListAvailableSlots(context.Background(), env.tutor.UserID, monday)
			require.NoError(t, err)
			assert.Equal(t, tt.want, slotStarts(slots))
		})
	}
}

func TestListAvailableSlotsPastDate(t *testing.T) {
	env := newTestEnv(t)
	env.declareMonday(t)

	_, err := env.slots.ListAvailableSlots(context.Background(), env.tutor.UserID, testNow.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, service.ErrInvalidDate)

	_, err = env.slots.ListAvailableSlots(context.Background(), env.student.UserID, monday)
	assert.ErrorIs(t, err, service.ErrNotFound)
}
