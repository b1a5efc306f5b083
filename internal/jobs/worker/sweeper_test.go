package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/jobs/runtime"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

type fakeLister struct {
	reqs []*types.OutlineRequest
	err  error
}

func (f *fakeLister) ListUnfinishedOutlines(ctx context.Context, limit int) ([]*types.OutlineRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.reqs) {
		return f.reqs[:limit], nil
	}
	return f.reqs, nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	ids  []uuid.UUID
	fail map[uuid.UUID]error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[id]; err != nil {
		return err
	}
	f.ids = append(f.ids, id)
	return nil
}

func (f *fakeDispatcher) dispatched() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.ids...)
}

func outlineAt(created time.Time) *types.OutlineRequest {
	return &types.OutlineRequest{ID: uuid.New(), Title: "t", OutlineText: "x", CreatedAt: created}
}

func TestSweepDispatchesOldEnoughRequests(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	old := outlineAt(now.Add(-time.Hour))
	fresh := outlineAt(now.Add(-5 * time.Second))
	lister := &fakeLister{reqs: []*types.OutlineRequest{old, fresh}}
	disp := &fakeDispatcher{}

	s := NewSweeper(logger.Nop(), lister, disp, Options{MinAge: time.Minute})
	s.now = func() time.Time { return now }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{old.ID}, disp.dispatched())
}

func TestSweepContinuesPastDispatchErrors(t *testing.T) {
	a, b := outlineAt(time.Time{}), outlineAt(time.Time{})
	disp := &fakeDispatcher{fail: map[uuid.UUID]error{a.ID: errors.New("boom")}}
	s := NewSweeper(logger.Nop(), &fakeLister{reqs: []*types.OutlineRequest{a, b}}, disp, Options{})

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{b.ID}, disp.dispatched())
}

func TestSweepStopsWhenShuttingDown(t *testing.T) {
	a, b := outlineAt(time.Time{}), outlineAt(time.Time{})
	disp := &fakeDispatcher{fail: map[uuid.UUID]error{a.ID: runtime.ErrShuttingDown}}
	s := NewSweeper(logger.Nop(), &fakeLister{reqs: []*types.OutlineRequest{a, b}}, disp, Options{})

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, disp.dispatched())
}

func TestSweepReportsListError(t *testing.T) {
	s := NewSweeper(logger.Nop(), &fakeLister{err: errors.New("db down")}, &fakeDispatcher{}, Options{})
	_, err := s.Sweep(context.Background())
	require.Error(t, err)
}

func TestStartSweepsImmediately(t *testing.T) {
	a := outlineAt(time.Time{})
	disp := &fakeDispatcher{}
	s := NewSweeper(logger.Nop(), &fakeLister{reqs: []*types.OutlineRequest{a}}, disp, Options{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	require.Eventually(t, func() bool { return len(disp.dispatched()) == 1 }, 2*time.Second, 10*time.Millisecond)
}
