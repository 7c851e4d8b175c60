package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageq/internal/config"
	"stageq/internal/runner"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func report(t *testing.T) *runner.Report {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return &runner.Report{ID: id.String(), StartedAt: time.Now(), Mode: config.ModeRate, Passed: true}
}

func TestStore_SaveGet(t *testing.T) {
	s := openTemp(t)
	cfg := config.Defaults()
	cfg.Target.URL = "http://localhost:8080/fast"
	rep := report(t)
	rep.Summary.Count = 42

	require.NoError(t, s.Save(Record{Report: rep, Config: cfg}))

	got, err := s.Get(rep.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.Report.Summary.Count)
	assert.Equal(t, cfg.Target.URL, got.Config.Target.URL)

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := openTemp(t)
	var ids []string
	for i := 0; i < 3; i++ {
		rep := report(t)
		ids = append(ids, rep.ID)
		require.NoError(t, s.Save(Record{Report: rep}))
	}

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].Report.ID)
	assert.Equal(t, ids[0], all[2].Report.ID)

	two, err := s.List(2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestStore_DeleteAndReject(t *testing.T) {
	s := openTemp(t)
	rep := report(t)
	require.NoError(t, s.Save(Record{Report: rep}))

	require.NoError(t, s.Delete(rep.ID))
	assert.ErrorIs(t, s.Delete(rep.ID), ErrNotFound)
	assert.Error(t, s.Save(Record{}))
}

func TestStore_Recorder(t *testing.T) {
	s := openTemp(t)
	rep := report(t)

	var errs []error
	hook := s.Recorder(config.Defaults(), func(err error) { errs = append(errs, err) })
	hook(rep)
	hook(&runner.Report{})

	_, err := s.Get(rep.ID)
	assert.NoError(t, err)
	assert.Len(t, errs, 1)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	rep := report(t)
	require.NoError(t, s.Save(Record{Report: rep}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
	_, err = s.Get(rep.ID)
	assert.NoError(t, err)
}
