package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVisitsAndPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.RecordVisit(ctx, Visit{HashedIP: "aaaa", Path: "/", CreatedAt: now.Add(-400 * 24 * time.Hour).Unix()}))
	require.NoError(t, s.RecordVisit(ctx, Visit{HashedIP: "aaaa", Path: "/", CreatedAt: now.Unix()}))
	require.NoError(t, s.RecordVisit(ctx, Visit{HashedIP: "bbbb", Path: "/contact-form"}))

	stats, err := s.Stats(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalVisitors)
	assert.EqualValues(t, 2, stats.UniqueVisitors)
	assert.EqualValues(t, 2, stats.VisitorsThisWeek)

	n, err := s.PruneVisits(ctx, now.Add(-365*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	visits, err := s.RecentVisits(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, visits, 2)
}

func TestLinksKeepClicksAcrossSeeding(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SeedLinks(ctx, []Link{{Slug: "github", URL: "https://github.com/old", Label: "GitHub"}}))
	_, err := s.Click(ctx, "github")
	require.NoError(t, err)

	require.NoError(t, s.SeedLinks(ctx, []Link{{Slug: "github", URL: "https://github.com/new", Label: "GitHub"}}))
	l, err := s.Click(ctx, "github")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/new", l.URL)
	assert.EqualValues(t, 2, l.Clicks)

	_, err = s.Click(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmissionsCountedByOutcome(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.RecordSubmission(ctx, Submission{Outcome: OutcomeSent, DurationMS: 120})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	_, err = s.RecordSubmission(ctx, Submission{Outcome: OutcomeFailed, Error: "status 429"})
	require.NoError(t, err)

	stats, err := s.Stats(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.MessagesSent)
	assert.EqualValues(t, 1, stats.MessagesFailed)
	require.Len(t, stats.RecentSubmissions, 2)
}
