package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council-ai/internal/domain"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func historyBackends(t *testing.T) map[string]domain.HistoryStore {
	t.Helper()
	fh, err := NewFileHistoryStore(t.TempDir())
	require.NoError(t, err)
	return map[string]domain.HistoryStore{
		"file":   fh,
		"sqlite": newSQLiteStore(t).History(),
	}
}

func statsBackends(t *testing.T) map[string]domain.StatsStore {
	t.Helper()
	fs, err := NewFileStatsStore(t.TempDir())
	require.NoError(t, err)
	return map[string]domain.StatsStore{
		"file":   fs,
		"sqlite": newSQLiteStore(t).Stats(),
	}
}

func msg(role, content string) domain.Message {
	return domain.Message{Role: role, Content: content}
}

func contents(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestHistory_AppendLoadOrder(t *testing.T) {
	ctx := context.Background()
	for name, h := range historyBackends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := h.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, h.Append(ctx, msg(domain.RoleUser, "q1")))
			require.NoError(t, h.Append(ctx,
				domain.Message{Role: domain.RoleAssistant, Content: "a1", AgentID: "chair", Images: []string{"aGk="}},
				msg(domain.RoleUser, "q2"),
			))
			require.NoError(t, h.Append(ctx))

			got, err = h.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"q1", "a1", "q2"}, contents(got))
			assert.Equal(t, "chair", got[1].AgentID)
			assert.Equal(t, []string{"aGk="}, got[1].Images)
		})
	}
}

func TestHistory_DropOldest(t *testing.T) {
	ctx := context.Background()
	for name, h := range historyBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, h.Append(ctx, msg("user", "1"), msg("assistant", "2"), msg("user", "3"), msg("assistant", "4")))

			require.NoError(t, h.DropOldest(ctx, 0))
			require.NoError(t, h.DropOldest(ctx, 2))
			got, err := h.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"3", "4"}, contents(got))

			require.NoError(t, h.DropOldest(ctx, 10))
			got, err = h.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestHistory_Clear(t *testing.T) {
	ctx := context.Background()
	for name, h := range historyBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, h.Append(ctx, msg("user", "q")))
			require.NoError(t, h.Clear(ctx))
			got, err := h.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, h.Append(ctx, msg("user", "after")))
			got, err = h.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"after"}, contents(got))
		})
	}
}

func TestFileHistory_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	h, err := NewFileHistoryStore(dir)
	require.NoError(t, err)
	require.NoError(t, h.Append(ctx, msg("user", "q"), msg("assistant", "a")))

	reopened, err := NewFileHistoryStore(dir)
	require.NoError(t, err)
	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"q", "a"}, contents(got))

	info, err := os.Stat(filepath.Join(dir, historyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileHistory_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	h, err := NewFileHistoryStore(dir)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Append(context.Background(), msg("user", "x")))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, historyFile, entries[0].Name())
}

func TestFileHistory_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, historyFile), []byte("{not json"), 0600))
	_, err := NewFileHistoryStore(dir)
	assert.Error(t, err)
}

func TestFileHistory_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	h, err := NewFileHistoryStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, h.Append(ctx, msg("user", "q")))

	got, _ := h.Load(ctx)
	got[0].Content = "mutated"
	again, _ := h.Load(ctx)
	assert.Equal(t, "q", again[0].Content)
}

func TestSQLiteHistory_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "council.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.History().Append(ctx, msg("user", "q")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.History().Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"q"}, contents(got))
}

func TestStats_RecordAndGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range statsBackends(t) {
		t.Run(name, func(t *testing.T) {
			st, err := s.Get(ctx, "gpt")
			require.NoError(t, err)
			assert.Equal(t, domain.AgentStats{AgentID: "gpt"}, st)

			_, err = s.Record(ctx, "gpt", domain.VerdictAccepted)
			require.NoError(t, err)
			_, err = s.Record(ctx, "gpt", domain.VerdictPartial)
			require.NoError(t, err)
			st, err = s.Record(ctx, "gpt", domain.VerdictRejected)
			require.NoError(t, err)

			want := domain.AgentStats{AgentID: "gpt", Total: 3, Accepted: 1, Partial: 1, Rejected: 1}
			assert.Equal(t, want, st)
			got, err := s.Get(ctx, "gpt")
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.InDelta(t, 50.0, got.Efficiency(), 0.001)
		})
	}
}

func TestStats_RecordRejectsEmptyID(t *testing.T) {
	for name, s := range statsBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Record(context.Background(), "", domain.VerdictAccepted)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestStats_AllSortedAndReset(t *testing.T) {
	ctx := context.Background()
	for name, s := range statsBackends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"zeta", "alpha", "mid"} {
				_, err := s.Record(ctx, id, domain.VerdictAccepted)
				require.NoError(t, err)
			}
			all, err := s.All(ctx)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "alpha", all[0].AgentID)
			assert.Equal(t, "mid", all[1].AgentID)
			assert.Equal(t, "zeta", all[2].AgentID)

			require.NoError(t, s.Reset(ctx))
			all, err = s.All(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestStats_ConcurrentRecords(t *testing.T) {
	ctx := context.Background()
	for name, s := range statsBackends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.Record(ctx, "gpt", domain.VerdictAccepted)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			st, err := s.Get(ctx, "gpt")
			require.NoError(t, err)
			assert.Equal(t, 20, st.Total)
			assert.Equal(t, 20, st.Accepted)
		})
	}
}

func TestFileStats_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStatsStore(dir)
	require.NoError(t, err)
	_, err = s.Record(ctx, "gpt", domain.VerdictPartial)
	require.NoError(t, err)

	reopened, err := NewFileStatsStore(dir)
	require.NoError(t, err)
	st, err := reopened.Get(ctx, "gpt")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Partial)
}

func TestOpen(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			stores, err := Open(configStorage(backend, t.TempDir()))
			require.NoError(t, err)
			defer stores.Close()

			ctx := context.Background()
			require.NoError(t, stores.History.Append(ctx, msg("user", "q")))
			_, err = stores.Stats.Record(ctx, "gpt", domain.VerdictAccepted)
			require.NoError(t, err)
		})
	}

	_, err := Open(configStorage("postgres", t.TempDir()))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
