package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository/inmem"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAvailabilityReplaceActions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tutorID := env.tutor.UserID

	week := model.WeekSnapshot{
		time.Monday:    {{Start: 600, End: 720}, {Start: 540, End: 600}},
		time.Wednesday: {{Start: 900, End: 1020}},
	}

	entry, err := env.availability.Replace(ctx, env.tutor, tutorID, week)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, model.AvailabilityAdded, entry.Action)
	assert.True(t, entry.Before.IsEmpty())
	// интервалы отсортированы
	assert.Equal(t, []model.TimeRange{{Start: 540, End: 600}, {Start: 600, End: 720}}, entry.After[time.Monday])

	entry, err = env.availability.Replace(ctx, env.tutor, tutorID, week)
	require.NoError(t, err)
	assert.Nil(t, entry, "unchanged week must not be logged")

	week[time.Wednesday] = []model.TimeRange{{Start: 900, End: 960}}
	entry, err = env.availability.Replace(ctx, env.tutor, tutorID, week)
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityUpdated, entry.Action)

	week[time.Friday] = []model.TimeRange{{Start: 600, End: 660}}
	week[time.Saturday] = []model.TimeRange{{Start: 600, End: 660}}
	entry, err = env.availability.Replace(ctx, env.tutor, tutorID, week)
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityBulkUpdate, entry.Action)

	entry, err = env.availability.Replace(ctx, env.admin, tutorID, model.WeekSnapshot{})
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityDeleted, entry.Action)
	assert.Equal(t, env.admin.UserID, entry.ActorID)
	assert.Equal(t, model.RoleAdmin, entry.ActorRole)

	history, err := env.availability.History(ctx, env.tutor, tutorID, 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, model.AvailabilityDeleted, history[0].Action)
	assert.Equal(t, model.AvailabilityAdded, history[3].Action)
}

func TestAvailabilityReplaceValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		week model.WeekSnapshot
	}{
		{"overlap", model.WeekSnapshot{time.Monday: {{Start: 540, End: 660}, {Start: 600, End: 720}}}},
		{"empty range", model.WeekSnapshot{time.Monday: {{Start: 600, End: 600}}}},
		{"after midnight", model.WeekSnapshot{time.Monday: {{Start: 1380, End: 1500}}}},
		{"negative start", model.WeekSnapshot{time.Tuesday: {{Start: -30, End: 60}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.availability.Replace(ctx, env.tutor, env.tutor.UserID, tt.week)
			assert.ErrorIs(t, err, service.ErrValidation)
		})
	}
}

func TestAvailabilityReplaceForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	otherTutor := env.addUser(t, model.RoleTutor, "Мария")
	week := model.WeekSnapshot{time.Monday: {{Start: 540, End: 600}}}

	_, err := env.availability.Replace(ctx, env.student, env.tutor.UserID, week)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = env.availability.Replace(ctx, otherTutor, env.tutor.UserID, week)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = env.availability.Replace(ctx, env.admin, env.student.UserID, week)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestAvailabilityRollback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tutorID := env.tutor.UserID

	first := model.WeekSnapshot{time.Monday: {{Start: 540, End: 720}}}
	second := model.WeekSnapshot{time.Monday: {{Start: 540, End: 600}}, time.Friday: {{Start: 540, End: 600}}}

	_, err := env.availability.Replace(ctx, env.tutor, tutorID, first)
	require.NoError(t, err)
	changed, err := env.availability.Replace(ctx, env.tutor, tutorID, second)
	require.NoError(t, err)

	rolled, err := env.availability.Rollback(ctx, env.tutor, tutorID, changed.ID)
	require.NoError(t, err)
	require.NotNil(t, rolled)
	assert.NotEqual(t, changed.ID, rolled.ID)

	current, err := env.availability.Get(ctx, tutorID)
	require.NoError(t, err)
	assert.Empty(t, current.Days.ChangedDays(first))

	// старые записи не меняются
	history, err := env.availability.History(ctx, env.tutor, tutorID, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, second[time.Friday], history[1].After[time.Friday])

	_, err = env.availability.Rollback(ctx, env.tutor, tutorID, 9999)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

// orderedAvailability записывает порядок блокировки и чтения недели
type orderedAvailability struct {
	*inmem.AvailabilityRepository
	calls []string
}

func (r *orderedAvailability) LockTutor(ctx context.Context, tutorID int64) error {
	r.calls = append(r.calls, "lock")
	return r.AvailabilityRepository.LockTutor(ctx, tutorID)
}

func (r *orderedAvailability) Get(ctx context.Context, tutorID int64) (*model.TutorAvailability, error) {
	r.calls = append(r.calls, "get")
	return r.AvailabilityRepository.Get(ctx, tutorID)
}

func TestAvailabilityReplaceLocksBeforeRead(t *testing.T) {
	env := newTestEnv(t)
	repo := &orderedAvailability{AvailabilityRepository: inmem.NewAvailabilityRepository(env.store)}
	svc := service.NewAvailabilityService(inmem.NewTransactor(env.store), env.users, repo, zap.NewNop())

	_, err := svc.Replace(context.Background(), env.tutor, env.tutor.UserID, model.WeekSnapshot{
		time.Monday: {{Start: 540, End: 720}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"lock", "get"}, repo.calls)
}

func TestAvailabilityConcurrentReplacesChainLog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tutorID := env.tutor.UserID

	weeks := []model.WeekSnapshot{
		{time.Monday: {{Start: 540, End: 600}}},
		{time.Tuesday: {{Start: 600, End: 660}}},
	}

	var wg sync.WaitGroup
	for _, week := range weeks {
		wg.Add(1)
		go func(week model.WeekSnapshot) {
			defer wg.Done()
			_, err := env.availability.Replace(ctx, env.tutor, tutorID, week)
			assert.NoError(t, err)
		}(week)
	}
	wg.Wait()

	history, err := env.availability.History(ctx, env.tutor, tutorID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// вторая запись видит результат первой, а не исходную пустую неделю
	assert.Empty(t, history[0].Before.ChangedDays(history[1].After))
	assert.Empty(t, history[1].Before.ChangedDays(model.WeekSnapshot{}))
}
