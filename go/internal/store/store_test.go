package store

import (
	"math/rand"
	"testing"

	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRecordIsIdempotent(t *testing.T) {
	s := New()

	require.NoError(t, s.AddRecord("p1", "alice"))
	_, err := s.SetHealth("p1", 30)
	require.NoError(t, err)

	err = s.AddRecord("p1", "alice-again")
	assert.ErrorIs(t, err, ErrDuplicateRecord)
	assert.Equal(t, 1, s.Len())

	rec, ok := s.Get("p1")
	require.True(t, ok)
	assert.Equal(t, "alice", rec.Name)
	assert.Equal(t, 30, rec.Health, "duplicate add must not reset the record")
}

func TestAddRecordDefaults(t *testing.T) {
	s := New()
	require.NoError(t, s.AddRecord("p1", ""))

	rec, _ := s.Get("p1")
	assert.Equal(t, models.DefaultPlayerName, rec.Name)
	assert.Equal(t, models.MaxHealth, rec.Health)
	assert.Zero(t, rec.Score)
}

func TestSetHealthClamps(t *testing.T) {
	s := New()
	require.NoError(t, s.AddRecord("p1", "alice"))

	cases := []struct {
		in, want int
	}{
		{in: 40, want: 40},
		{in: -50, want: 0},
		{in: 150, want: 100},
		{in: 0, want: 0},
		{in: 100, want: 100},
	}
	for _, tc := range cases {
		rec, err := s.SetHealth("p1", tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, rec.Health, "SetHealth(%d)", tc.in)
	}
}

func TestSetHealthRandomSequencesStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := New()
	require.NoError(t, s.AddRecord("p1", "alice"))

	for i := 0; i < 1000; i++ {
		rec, err := s.SetHealth("p1", rng.Intn(601)-300)
		require.NoError(t, err)
		require.GreaterOrEqual(t, rec.Health, 0)
		require.LessOrEqual(t, rec.Health, models.MaxHealth)
	}
}

func TestStaleMutations(t *testing.T) {
	s := New()

	_, err := s.SetHealth("ghost", 10)
	assert.ErrorIs(t, err, ErrStaleMutation)

	_, err = s.SetScore("ghost", 10)
	assert.ErrorIs(t, err, ErrStaleMutation)

	assert.False(t, s.RemoveRecord("ghost"))
	assert.Zero(t, s.Len())
}

func TestSetScoreLastWriteWins(t *testing.T) {
	s := New()
	require.NoError(t, s.AddRecord("p1", "alice"))

	_, err := s.SetScore("p1", 200)
	require.NoError(t, err)
	rec, err := s.SetScore("p1", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, rec.Score)

	rec, err = s.SetScore("p1", -5)
	require.NoError(t, err)
	assert.Zero(t, rec.Score)
}

func TestRemoveRecord(t *testing.T) {
	s := New()
	require.NoError(t, s.AddRecord("p1", "alice"))
	require.NoError(t, s.AddRecord("p2", "bob"))

	assert.True(t, s.RemoveRecord("p1"))
	_, ok := s.Get("p1")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestRanking(t *testing.T) {
	s := New()
	require.NoError(t, s.AddRecord("p1", "carol"))
	require.NoError(t, s.AddRecord("p2", "alice"))
	require.NoError(t, s.AddRecord("p3", "bob"))
	_, _ = s.SetScore("p1", 100)
	_, _ = s.SetScore("p3", 300)

	ranking := s.Ranking()
	require.Len(t, ranking, 3)
	assert.Equal(t, models.PeerID("p3"), ranking[0].EntityID)
	assert.Equal(t, models.PeerID("p1"), ranking[1].EntityID)
	assert.Equal(t, models.PeerID("p2"), ranking[2].EntityID)
}

func TestRecordsAreCopies(t *testing.T) {
	s := New()
	require.NoError(t, s.AddRecord("p1", "alice"))

	recs := s.Records()
	recs[0].Health = 1

	rec, _ := s.Get("p1")
	assert.Equal(t, models.MaxHealth, rec.Health)
}
