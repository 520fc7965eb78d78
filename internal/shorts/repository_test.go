package shorts

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSession(t *testing.T, repo *SQLiteRepository, id string, created time.Time) *SessionRecord {
	t.Helper()
	s := &SessionRecord{
		ID:          id,
		VideoID:     "dQw4w9WgXcQ",
		SourceRef:   "https://youtu.be/dQw4w9WgXcQ",
		SourcePath:  "/out/" + id + "/source_dQw4w9WgXcQ.mp4",
		AspectRatio: Portrait,
		CreatedAt:   created,
	}
	require.NoError(t, repo.CreateSession(context.Background(), s))
	return s
}

func testPlans(t *testing.T, source string) []ClipPlan {
	t.Helper()
	plans, err := NewPlanner(nil).Plan(source, []MomentDescriptor{
		{Content: "first", StartTimestamp: "00:05", EndTimestamp: "00:15", Reason: "hook"},
		{Content: "second", StartTimestamp: "01:00", EndTimestamp: "01:30"},
	}, Portrait, "sid")
	require.NoError(t, err)
	return plans
}

func TestRepository_SessionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	want := seedSession(t, repo, "dQw4w9WgXcQ_20240309_140507", created)

	got, err := repo.GetSession(ctx, want.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.VideoID, got.VideoID)
	assert.Equal(t, want.SourcePath, got.SourcePath)
	assert.Equal(t, Portrait, got.AspectRatio)
	assert.True(t, created.Equal(got.CreatedAt))

	missing, err := repo.GetSession(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_ListSessionsNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedSession(t, repo, "a", base)
	seedSession(t, repo, "b", base.Add(time.Hour))
	seedSession(t, repo, "c", base.Add(2*time.Hour))

	got, err := repo.ListSessions(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestRepository_ClipPlansRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	s := seedSession(t, repo, "sid", time.Now())
	plans := testPlans(t, s.SourcePath)
	require.NoError(t, repo.SaveClipPlans(ctx, s.ID, plans))

	clips, err := repo.ListClips(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, clips, 2)
	for i, c := range clips {
		assert.Equal(t, StatePlanned, c.State)
		assert.Equal(t, plans[i], planFromRecord(c, s))
	}
}

func TestRepository_ResaveResetsState(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	s := seedSession(t, repo, "sid", time.Now())
	plans := testPlans(t, s.SourcePath)
	require.NoError(t, repo.SaveClipPlans(ctx, s.ID, plans))
	require.NoError(t, repo.UpdateClipState(ctx, s.ID, 1, StateFailed, "boom"))

	c, err := repo.GetClip(ctx, s.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, c.State)
	assert.Equal(t, "boom", c.Error)

	require.NoError(t, repo.SaveClipPlans(ctx, s.ID, plans))
	c, err = repo.GetClip(ctx, s.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, StatePlanned, c.State)
	assert.Empty(t, c.Error)

	clips, err := repo.ListClips(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, clips, 2)
}

func TestRepository_UpdateMissingClip(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.UpdateClipState(context.Background(), "sid", 1, StateRendered, "")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	c, err := repo.GetClip(context.Background(), "sid", 1)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestRepository_DeleteCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	s := seedSession(t, repo, "sid", time.Now())
	require.NoError(t, repo.SaveClipPlans(ctx, s.ID, testPlans(t, s.SourcePath)))

	require.NoError(t, repo.DeleteSession(ctx, s.ID))
	clips, err := repo.ListClips(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, clips)
}

func TestRepository_Config(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	v, err := repo.GetConfig(ctx, "last_aspect")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, repo.SetConfig(ctx, "last_aspect", "1"))
	require.NoError(t, repo.SetConfig(ctx, "last_aspect", "2"))
	v, err = repo.GetConfig(ctx, "last_aspect")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}
