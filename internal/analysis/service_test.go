package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"schedule-management-backend/internal/ai"
	"schedule-management-backend/internal/db"
	"schedule-management-backend/internal/db/dbtest"
	"schedule-management-backend/internal/schedule"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	ict     = time.FixedZone("ICT", 7*3600)
	testNow = time.Date(2024, 1, 10, 1, 0, 0, 0, time.UTC)
)

type fixture struct {
	db  *db.DB
	svc *Service
	uid int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := dbtest.Open(t)
	parser := schedule.NewParser(schedule.Options{
		Location: ict,
		Now:      func() time.Time { return testNow },
	})
	svc := NewService(database, parser, ai.NewHeuristic(parser), zap.NewNop())
	svc.Now = func() time.Time { return testNow }
	return &fixture{db: database, svc: svc, uid: dbtest.CreateUser(t, database, "sv@example.com")}
}

// seed creates an import for uid holding rows and returns the entry ids.
func (f *fixture) seed(t *testing.T, uid int, rows ...schedule.Row) (string, []int64) {
	t.Helper()
	ctx := context.Background()
	importID := uuid.NewString()

	_, err := f.db.Exec(ctx,
		`INSERT INTO csv_imports (id, user_id, file_name, row_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		importID, uid, "lich.csv", len(rows), testNow)
	require.NoError(t, err)

	ids := make([]int64, 0, len(rows))
	for i, r := range rows {
		raw, err := json.Marshal(r)
		require.NoError(t, err)

		var id int64
		err = f.db.QueryRow(ctx, `
			INSERT INTO csv_task_entries (
				user_id, import_id, row_number, raw_data,
				lop, ngay, phong, mon_hoc, gio_bat_dau, gio_ket_thuc, updated_at
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`, uid, importID, i+1, string(raw),
			r.Lop, r.Ngay, r.Phong, r.MonHoc, r.GioBatDau, r.GioKetThuc, testNow,
		).Scan(&id)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return importID, ids
}

func (f *fixture) state(t *testing.T, id int64) EntryState {
	t.Helper()
	var s EntryState
	require.NoError(t, f.db.QueryRow(context.Background(), `
		SELECT is_locked, analysis_status, COALESCE(lock_analysis_id, ''), error_message
		FROM csv_task_entries WHERE id = ?
	`, id).Scan(&s.IsLocked, &s.Status, &s.LockAnalysisID, &s.ErrorMessage))
	return s
}

var (
	rowGiaiTich = schedule.Row{Lop: "K20", Ngay: "15/01/2024", Phong: "A101", MonHoc: "Giải tích", GioBatDau: "7:00", GioKetThuc: "9:00"}
	rowVatLy    = schedule.Row{Ngay: "16/01/2024", MonHoc: "Vật lý", GioBatDau: "Tiết 1-3"}
	rowHoa      = schedule.Row{Ngay: "17/01/2024", Phong: "p.b2", MonHoc: "Hóa đại cương", GioBatDau: "13h", GioKetThuc: "15h"}
	rowBadDate  = schedule.Row{Ngay: "hôm qua", MonHoc: "Hóa", GioBatDau: "7h"}
)

func TestSubmit_AllUnlocked(t *testing.T) {
	f := newFixture(t)
	_, ids := f.seed(t, f.uid, rowGiaiTich, rowVatLy, rowHoa)

	res, err := f.svc.Submit(context.Background(), SubmitRequest{UserID: f.uid, EntryIDs: ids, AnalysisType: TypeParsing})
	require.NoError(t, err)

	assert.NotEmpty(t, res.AnalysisID)
	assert.Equal(t, 3, res.EntriesSubmitted)
	assert.Equal(t, res.EntriesSubmitted, res.EntriesLocked)
	assert.Zero(t, res.EntriesSkipped)
	assert.Equal(t, StatusPending, res.Status)

	for _, id := range ids {
		st := f.state(t, id)
		assert.True(t, st.IsLocked)
		assert.Equal(t, EntryPending, st.Status)
		assert.Equal(t, res.AnalysisID, st.LockAnalysisID)
	}
}

func TestSubmit_DuplicateIDsCountOnce(t *testing.T) {
	f := newFixture(t)
	_, ids := f.seed(t, f.uid, rowGiaiTich)

	res, err := f.svc.Submit(context.Background(), SubmitRequest{UserID: f.uid, EntryIDs: []int64{ids[0], ids[0]}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.EntriesSubmitted)
	assert.Equal(t, 1, res.EntriesLocked)
}

func TestSubmit_PartiallyLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, ids := f.seed(t, f.uid, rowGiaiTich, rowVatLy, rowHoa)

	first, err := f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: ids[:2]})
	require.NoError(t, err)

	second, err := f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: ids})
	require.NoError(t, err)
	assert.Equal(t, 3, second.EntriesSubmitted)
	assert.Equal(t, 1, second.EntriesLocked)
	assert.Equal(t, 2, second.EntriesSkipped)
	assert.Equal(t, second.EntriesSubmitted, second.EntriesLocked+second.EntriesSkipped)
	assert.ElementsMatch(t, ids[:2], second.SkippedEntryIDs)

	// the first analysis keeps its locks
	assert.Equal(t, first.AnalysisID, f.state(t, ids[0]).LockAnalysisID)
	assert.Equal(t, first.AnalysisID, f.state(t, ids[1]).LockAnalysisID)
	assert.Equal(t, second.AnalysisID, f.state(t, ids[2]).LockAnalysisID)
}

func TestSubmit_AllLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, ids := f.seed(t, f.uid, rowGiaiTich, rowVatLy)

	_, err := f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: ids})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: ids})
	assert.ErrorIs(t, err, ErrAllLocked)

	var n int
	require.NoError(t, f.db.QueryRow(ctx, `SELECT COUNT(*) FROM csv_analyses`).Scan(&n))
	assert.Equal(t, 1, n, "rejected submit must not leave an analysis behind")
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, ids := f.seed(t, f.uid, rowGiaiTich)

	other := dbtest.CreateUser(t, f.db, "other@example.com")
	_, foreign := f.seed(t, other, rowVatLy)

	cases := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"nil ids", SubmitRequest{UserID: f.uid}, ErrEmptyEntrySet},
		{"empty ids", SubmitRequest{UserID: f.uid, EntryIDs: []int64{}}, ErrEmptyEntrySet},
		{"unknown user", SubmitRequest{UserID: 9999, EntryIDs: ids}, ErrUserNotFound},
		{"unknown entry", SubmitRequest{UserID: f.uid, EntryIDs: []int64{ids[0], 424242}}, ErrEntryNotFound},
		{"foreign entry", SubmitRequest{UserID: f.uid, EntryIDs: foreign}, ErrEntryNotFound},
		{"bad type", SubmitRequest{UserID: f.uid, EntryIDs: ids, AnalysisType: "magic"}, ErrInvalidType},
		{"bad timezone", SubmitRequest{UserID: f.uid, EntryIDs: ids, Options: &Options{Timezone: "Mars/Base"}}, ErrInvalidOptions},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	assert.False(t, f.state(t, ids[0]).IsLocked)
}

func TestUnlock_EntriesBecomeAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, ids := f.seed(t, f.uid, rowGiaiTich, rowVatLy, rowHoa)

	_, err := f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: ids[:2]})
	require.NoError(t, err)

	st, err := f.svc.Status(ctx, f.uid)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Locked)
	assert.Equal(t, 2, st.PendingAnalysis)
	assert.Equal(t, 1, st.AvailableForAnalysis)

	res, err := f.svc.Unlock(ctx, UnlockRequest{UserID: f.uid, EntryIDs: ids})
	require.NoError(t, err)
	assert.Equal(t, 2, res.EntriesUnlocked)
	assert.ElementsMatch(t, ids[:2], res.EntryIDs)

	st, err = f.svc.Status(ctx, f.uid)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Locked)
	assert.Equal(t, 0, st.PendingAnalysis)
	assert.Equal(t, 3, st.AvailableForAnalysis)
	assert.Nil(t, st.OldestLockAgeSeconds)

	for _, id := range ids {
		assert.Equal(t, EntryState{Status: EntryNone}, f.state(t, id))
	}

	res, err = f.svc.Unlock(ctx, UnlockRequest{UserID: f.uid, EntryIDs: ids})
	require.NoError(t, err)
	assert.Zero(t, res.EntriesUnlocked)

	_, err = f.svc.Unlock(ctx, UnlockRequest{UserID: f.uid})
	assert.ErrorIs(t, err, ErrEmptyEntrySet)
	_, err = f.svc.Unlock(ctx, UnlockRequest{UserID: f.uid, EntryIDs: []int64{777}})
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestStatus_OldestLockAge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, ids := f.seed(t, f.uid, rowGiaiTich)

	_, err := f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: ids})
	require.NoError(t, err)

	f.svc.Now = func() time.Time { return testNow.Add(10 * time.Minute) }
	st, err := f.svc.Status(ctx, f.uid)
	require.NoError(t, err)
	require.NotNil(t, st.OldestLockAgeSeconds)
	assert.Equal(t, int64(600), *st.OldestLockAgeSeconds)

	_, err = f.svc.Status(ctx, 31337)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestProcess_PartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, ids := f.seed(t, f.uid, rowGiaiTich, rowBadDate, rowVatLy, rowHoa)

	sub, err := f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: ids})
	require.NoError(t, err)
	require.NoError(t, f.svc.Process(ctx, sub.AnalysisID))

	res, err := f.svc.Results(ctx, f.uid, sub.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 4, res.EntriesAnalyzed)
	require.Len(t, res.Results, 4)
	require.NotNil(t, res.CompletedAt)

	var failed []EntryResult
	for _, r := range res.Results {
		assert.NotEmpty(t, r.OriginalData)
		if r.Status == ResultFailed {
			failed = append(failed, r)
			continue
		}
		assert.Equal(t, ResultSuccess, r.Status)
		require.NotNil(t, r.ParsedResult)
		require.NotNil(t, r.AIAnalysis)
		assert.Equal(t, "heuristic", r.AIAnalysis.Provider)
	}
	require.Len(t, failed, 1)
	assert.Equal(t, ids[1], failed[0].EntryID)
	assert.NotEmpty(t, failed[0].ErrorMessage)
	assert.Nil(t, failed[0].ParsedResult)

	var orig schedule.Row
	require.NoError(t, json.Unmarshal(failed[0].OriginalData, &orig))
	assert.Equal(t, "hôm qua", orig.Ngay)

	assert.Equal(t, EntryFailed, f.state(t, ids[1]).Status)
	assert.False(t, f.state(t, ids[1]).IsLocked)
	assert.Equal(t, EntryCompleted, f.state(t, ids[0]).Status)

	st, err := f.svc.Status(ctx, f.uid)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Completed)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 0, st.Locked)
	assert.Equal(t, 1, st.AvailableForAnalysis)
}

func TestProcess_OptionsApplyToEveryType(t *testing.T) {
	row := schedule.Row{Ngay: "15/01/2024", MonHoc: "Giải tích", GioBatDau: "7:00"}

	cases := []struct {
		name  string
		opts  *Options
		start time.Time
		end   time.Duration
	}{
		{"defaults", nil, time.Date(2024, 1, 15, 7, 0, 0, 0, ict), 90 * time.Minute},
		{"utc with 45 minutes", &Options{Timezone: "UTC", DefaultDurationMinutes: 45}, time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC), 45 * time.Minute},
	}
	for _, typ := range []Type{TypeParsing, TypeAI, TypeBoth} {
		for _, tc := range cases {
			t.Run(string(typ)+"/"+tc.name, func(t *testing.T) {
				f := newFixture(t)
				ctx := context.Background()
				_, ids := f.seed(t, f.uid, row)

				sub, err := f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: ids, AnalysisType: typ, Options: tc.opts})
				require.NoError(t, err)
				require.NoError(t, f.svc.Process(ctx, sub.AnalysisID))

				res, err := f.svc.Results(ctx, f.uid, sub.AnalysisID)
				require.NoError(t, err)
				require.Len(t, res.Results, 1)
				ev := res.Results[0].ParsedResult
				require.NotNil(t, ev, res.Results[0].ErrorMessage)

				assert.True(t, tc.start.Equal(ev.StartDatetime), "start %s, want %s", ev.StartDatetime, tc.start)
				assert.Equal(t, tc.end, ev.EndDatetime.Sub(ev.StartDatetime))
			})
		}
	}
}

func TestResults_PollingIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, ids := f.seed(t, f.uid, rowGiaiTich, rowVatLy)

	sub, err := f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: ids})
	require.NoError(t, err)

	first, err := f.svc.Results(ctx, f.uid, sub.AnalysisID)
	require.NoError(t, err)
	second, err := f.svc.Results(ctx, f.uid, sub.AnalysisID)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, first.Status)
	assert.Zero(t, first.EntriesAnalyzed)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("polls differ (-first +second):\n%s", diff)
	}

	// polling must not have moved the entries
	assert.Equal(t, EntryPending, f.state(t, ids[0]).Status)

	_, err = f.svc.Results(ctx, f.uid, "does-not-exist")
	assert.ErrorIs(t, err, ErrAnalysisNotFound)

	other := dbtest.CreateUser(t, f.db, "nosy@example.com")
	_, err = f.svc.Results(ctx, other, sub.AnalysisID)
	assert.ErrorIs(t, err, ErrAnalysisNotFound)
}

func TestProcess_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, ids := f.seed(t, f.uid, rowGiaiTich)

	sub, err := f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: ids, AnalysisType: TypeParsing})
	require.NoError(t, err)
	require.NoError(t, f.svc.Process(ctx, sub.AnalysisID))

	before, err := f.svc.Results(ctx, f.uid, sub.AnalysisID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Process(ctx, sub.AnalysisID))
	after, err := f.svc.Results(ctx, f.uid, sub.AnalysisID)
	require.NoError(t, err)

	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("second Process changed results:\n%s", diff)
	}
	assert.Nil(t, before.Results[0].AIAnalysis, "parsing mode has no ai metadata")
}

// stubAnalyzer lets tests observe and fail individual analyzer calls.
type stubAnalyzer struct {
	hook func(req ai.Request)
	err  error
}

func (s stubAnalyzer) Analyze(ctx context.Context, req ai.Request) (*ai.Result, error) {
	if s.hook != nil {
		s.hook(req)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &ai.Result{Confidence: 0.9, Provider: "stub"}, nil
}

func TestProcess_UnlockedDuringAnalysis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, ids := f.seed(t, f.uid, rowGiaiTich, rowVatLy)

	target := ids[1]
	f.svc.analyzer = stubAnalyzer{hook: func(req ai.Request) {
		if req.EntryID == target {
			_, err := f.svc.Unlock(ctx, UnlockRequest{UserID: f.uid, EntryIDs: []int64{target}})
			assert.NoError(t, err)
		}
	}}

	sub, err := f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: ids, AnalysisType: TypeBoth})
	require.NoError(t, err)
	require.NoError(t, f.svc.Process(ctx, sub.AnalysisID))

	res, err := f.svc.Results(ctx, f.uid, sub.AnalysisID)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)

	byID := map[int64]EntryResult{}
	for _, r := range res.Results {
		byID[r.EntryID] = r
	}
	assert.Equal(t, ResultSuccess, byID[ids[0]].Status)
	assert.Equal(t, ResultFailed, byID[target].Status)
	assert.Equal(t, errUnlockedDuringAnalysis, byID[target].ErrorMessage)

	assert.Equal(t, EntryState{Status: EntryNone}, f.state(t, target))
	assert.Equal(t, EntryCompleted, f.state(t, ids[0]).Status)
}

func TestProcess_AIFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, ids := f.seed(t, f.uid, rowGiaiTich)
	f.svc.analyzer = stubAnalyzer{err: errors.New("model unavailable")}

	// ai-only entries fail
	sub, err := f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: ids, AnalysisType: TypeAI})
	require.NoError(t, err)
	require.NoError(t, f.svc.Process(ctx, sub.AnalysisID))
	res, err := f.svc.Results(ctx, f.uid, sub.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, ResultFailed, res.Results[0].Status)
	assert.Equal(t, "model unavailable", res.Results[0].ErrorMessage)

	// with a rule parse to fall back on, the entry still succeeds
	sub, err = f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: ids, AnalysisType: TypeBoth})
	require.NoError(t, err)
	require.NoError(t, f.svc.Process(ctx, sub.AnalysisID))
	res, err = f.svc.Results(ctx, f.uid, sub.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, res.Results[0].Status)
	assert.NotNil(t, res.Results[0].ParsedResult)
	assert.Nil(t, res.Results[0].AIAnalysis)
}

func TestProcess_DetectsConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	overlap := schedule.Row{Ngay: "15/01/2024", Phong: "B201", MonHoc: "Tiếng Anh", GioBatDau: "8:00", GioKetThuc: "10:00"}
	_, first := f.seed(t, f.uid, rowGiaiTich)
	_, second := f.seed(t, f.uid, overlap, rowVatLy)

	sub, err := f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: first})
	require.NoError(t, err)
	require.NoError(t, f.svc.Process(ctx, sub.AnalysisID))

	// the second run sees the first run's completed entry
	sub, err = f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: second})
	require.NoError(t, err)
	require.NoError(t, f.svc.Process(ctx, sub.AnalysisID))

	res, err := f.svc.Results(ctx, f.uid, sub.AnalysisID)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)

	r := res.Results[0]
	require.Equal(t, second[0], r.EntryID)
	require.NotNil(t, r.AIAnalysis)
	require.Len(t, r.AIAnalysis.Conflicts, 1)
	assert.Equal(t, first[0], r.AIAnalysis.Conflicts[0].EntryID)
	assert.Contains(t, r.AIAnalysis.Conflicts[0].Description, "Giải tích")

	assert.Empty(t, res.Results[1].AIAnalysis.Conflicts)
}

func TestBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	imp1, ids1 := f.seed(t, f.uid, rowGiaiTich, rowVatLy)
	imp2, _ := f.seed(t, f.uid, rowHoa)

	_, err := f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: ids1[:1]})
	require.NoError(t, err)

	no := false
	_, err = f.svc.Batch(ctx, BatchRequest{UserID: f.uid, ImportIDs: []string{imp1, imp2}, SkipLocked: &no})
	assert.ErrorIs(t, err, ErrEntriesLocked)
	assert.False(t, f.state(t, ids1[1]).IsLocked, "rejected batch must not keep its locks")

	res, err := f.svc.Batch(ctx, BatchRequest{UserID: f.uid, ImportIDs: []string{imp1, imp2}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.EntriesSubmitted)
	assert.Equal(t, 2, res.EntriesLocked)
	assert.Equal(t, 1, res.EntriesSkipped)
	assert.Equal(t, []int64{ids1[0]}, res.SkippedEntryIDs)

	_, err = f.svc.Batch(ctx, BatchRequest{UserID: f.uid, ImportIDs: []string{imp1}})
	assert.ErrorIs(t, err, ErrAllLocked)

	_, err = f.svc.Batch(ctx, BatchRequest{UserID: f.uid})
	assert.ErrorIs(t, err, ErrEmptyImportSet)

	_, err = f.svc.Batch(ctx, BatchRequest{UserID: f.uid, ImportIDs: []string{"nope"}})
	assert.ErrorIs(t, err, ErrImportNotFound)

	empty, _ := f.seed(t, f.uid)
	_, err = f.svc.Batch(ctx, BatchRequest{UserID: f.uid, ImportIDs: []string{empty}})
	assert.ErrorIs(t, err, ErrEmptyEntrySet)
}

func TestSubmit_StrictRejectsLockTakenMeanwhile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, ids := f.seed(t, f.uid, rowGiaiTich, rowVatLy)

	// the entry is free when a batch reads the import, then another submit
	// takes it before the batch locks
	first, err := f.svc.Submit(ctx, SubmitRequest{UserID: f.uid, EntryIDs: ids[1:]})
	require.NoError(t, err)

	_, err = f.svc.submit(ctx, f.uid, ids, TypeBoth, nil, true)
	assert.ErrorIs(t, err, ErrEntriesLocked)

	assert.Equal(t, EntryState{Status: EntryNone}, f.state(t, ids[0]))
	assert.Equal(t, first.AnalysisID, f.state(t, ids[1]).LockAnalysisID)

	var n int
	require.NoError(t, f.db.QueryRow(ctx, `SELECT COUNT(*) FROM csv_analyses`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestEntryState(t *testing.T) {
	cases := []struct {
		status    EntryStatus
		locked    bool
		available bool
	}{
		{EntryNone, false, true},
		{EntryPending, true, false},
		{EntryInProgress, true, false},
		{EntryCompleted, false, false},
		{EntryFailed, false, true},
	}
	for _, tc := range cases {
		s := EntryState{Status: tc.status}
		assert.Equal(t, tc.locked, s.Locked(), tc.status)
		assert.Equal(t, tc.available, s.Available(), tc.status)
	}
}
