package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schedule-management-backend/internal/config"
)

func waitCompleted(t *testing.T, f *fixture, analysisID string) *ResultsResponse {
	t.Helper()
	var res *ResultsResponse
	require.Eventually(t, func() bool {
		r, err := f.svc.Results(context.Background(), f.uid, analysisID)
		if err != nil || r.Status != StatusCompleted {
			return false
		}
		res = r
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return res
}

func TestWorker_ProcessesSubmitted(t *testing.T) {
	f := newFixture(t)
	_, ids := f.seed(t, f.uid, rowGiaiTich, rowBadDate)

	w := NewWorker(f.svc, config.WorkerConfig{Workers: 2, QueueSize: 4, EntryParallel: 2, RescanInterval: "1h"}, zap.NewNop())
	w.Start(context.Background())
	defer w.Stop()

	sub, err := f.svc.Submit(context.Background(), SubmitRequest{UserID: f.uid, EntryIDs: ids})
	require.NoError(t, err)

	res := waitCompleted(t, f, sub.AnalysisID)
	assert.Equal(t, 2, res.EntriesAnalyzed)
	assert.Equal(t, 2, f.svc.EntryParallelism)
}

func TestWorker_ResumesOnStart(t *testing.T) {
	f := newFixture(t)
	_, ids := f.seed(t, f.uid, rowVatLy)

	// accepted while no worker was running
	sub, err := f.svc.Submit(context.Background(), SubmitRequest{UserID: f.uid, EntryIDs: ids})
	require.NoError(t, err)

	w := NewWorker(f.svc, config.WorkerConfig{Workers: 1, QueueSize: 1, RescanInterval: "1h"}, zap.NewNop())
	w.Start(context.Background())
	defer w.Stop()

	waitCompleted(t, f, sub.AnalysisID)
	assert.Equal(t, EntryCompleted, f.state(t, ids[0]).Status)
}

func TestWorker_FullQueueIsRescanned(t *testing.T) {
	f := newFixture(t)
	_, ids := f.seed(t, f.uid, rowGiaiTich, rowVatLy)

	w := NewWorker(f.svc, config.WorkerConfig{Workers: 1, QueueSize: 1, RescanInterval: "20ms"}, zap.NewNop())

	// fill the queue before any consumer runs
	first, err := f.svc.Submit(context.Background(), SubmitRequest{UserID: f.uid, EntryIDs: ids[:1]})
	require.NoError(t, err)
	second, err := f.svc.Submit(context.Background(), SubmitRequest{UserID: f.uid, EntryIDs: ids[1:]})
	require.NoError(t, err)
	assert.Len(t, w.queue, 1)

	w.Start(context.Background())
	defer w.Stop()

	waitCompleted(t, f, first.AnalysisID)
	waitCompleted(t, f, second.AnalysisID)
}

func TestWorker_StopIsClean(t *testing.T) {
	f := newFixture(t)
	w := NewWorker(f.svc, config.WorkerConfig{Workers: 3, RescanInterval: "5ms"}, zap.NewNop())
	w.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	w.Stop()
}

func TestWorker_ResumesInterruptedBeyondQueueSize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, ids := f.seed(t, f.uid, rowGiaiTich, rowVatLy, rowHoa)

	// three runs left processing by a crash, more than the queue holds
	var analyses []string
	for _, id := range ids {
		sub, err := f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: []int64{id}})
		require.NoError(t, err)
		started, err := startAnalysis(ctx, f.db, sub.AnalysisID)
		require.NoError(t, err)
		require.True(t, started)
		require.NoError(t, markInProgress(ctx, f.db, sub.AnalysisID, testNow))
		analyses = append(analyses, sub.AnalysisID)
	}

	w := NewWorker(f.svc, config.WorkerConfig{Workers: 1, QueueSize: 1, RescanInterval: "10ms"}, zap.NewNop())
	w.Start(ctx)
	defer w.Stop()

	for _, id := range analyses {
		waitCompleted(t, f, id)
	}
	for _, id := range ids {
		st := f.state(t, id)
		assert.False(t, st.IsLocked)
		assert.Equal(t, EntryCompleted, st.Status)
	}
}
