package backends

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"availsync/internal/ports"
	"availsync/internal/types"
)

type clearer interface {
	ClearAll(ctx context.Context) error
}

// checkStore runs the same persistence checks against any StateStore.
func (s *UnitTestSuite) checkStore(st ports.StateStore) {
	ctx := context.Background()
	if c, ok := st.(clearer); ok {
		s.Require().NoError(c.ClearAll(ctx))
	}

	_, found, err := st.LoadAvailability(ctx)
	s.NoError(err)
	s.False(found)
	q, err := st.LoadQueue(ctx)
	s.NoError(err)
	s.Empty(q)

	at := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	s.NoError(st.SaveAvailability(ctx, types.AvailabilityRecord{IsAvailable: true, LastUpdatedAt: at, PendingSync: true}))
	rec, found, err := st.LoadAvailability(ctx)
	s.NoError(err)
	s.True(found)
	s.True(rec.IsAvailable)
	s.True(rec.PendingSync)
	s.True(at.Equal(rec.LastUpdatedAt))
	s.False(rec.LastConfirmed)

	s.NoError(st.SaveAvailability(ctx, types.AvailabilityRecord{IsAvailable: false, LastUpdatedAt: at, PendingSync: true, LastConfirmed: true}))
	rec, _, err = st.LoadAvailability(ctx)
	s.NoError(err)
	s.False(rec.IsAvailable)
	s.True(rec.LastConfirmed)

	body := `{"lat":12.97,"lng":77.59}`
	actions := []types.PendingAction{
		{ID: "a", Kind: types.KindLocationUpdate, Endpoint: "/location", Method: "POST", Body: &body, CreatedAt: at, MaxRetries: 3},
		{ID: "b", Kind: types.KindTripStatus, Endpoint: "/trips/1/status", Method: "PATCH", CreatedAt: at, RetryCount: 2, MaxRetries: 3},
	}
	s.NoError(st.SaveQueue(ctx, actions))
	q, err = st.LoadQueue(ctx)
	s.NoError(err)
	s.Require().Len(q, 2)
	s.Equal("a", q[0].ID)
	s.Equal(body, *q[0].Body)
	s.Equal("b", q[1].ID)
	s.Equal(2, q[1].RetryCount)
	s.Nil(q[1].Body)

	s.NoError(st.SaveQueue(ctx, actions[1:]))
	q, err = st.LoadQueue(ctx)
	s.NoError(err)
	s.Require().Len(q, 1)
	s.Equal("b", q[0].ID)

	if c, ok := st.(clearer); ok {
		s.NoError(c.ClearAll(ctx))
	}
}

func (s *UnitTestSuite) TestConformanceSQLite() {
	s.T().Setenv(StateBackendEnvKey, BackendSQLite)
	s.T().Setenv(SQLitePathKey, filepath.Join(s.T().TempDir(), "c.db"))
	st, err := StateBackendFromEnv(context.Background())
	s.Require().NoError(err)
	defer st.Close()
	s.checkStore(st)
}

func (s *UnitTestSuite) TestConformanceMemory() {
	s.T().Setenv(StateBackendEnvKey, BackendMemory)
	st, err := StateBackendFromEnv(context.Background())
	s.Require().NoError(err)
	s.checkStore(st)
}

func (s *UnitTestSuite) TestConformanceRedis() {
	if os.Getenv(RedisHost) == "" {
		s.T().Skip("REDIS_HOST not set")
	}
	s.T().Setenv(StateBackendEnvKey, BackendRedis)
	s.T().Setenv(NamespaceEnvKey, "conformance")
	st, err := StateBackendFromEnv(context.Background())
	s.Require().NoError(err)
	defer st.Close()
	s.checkStore(st)
}

func (s *UnitTestSuite) TestConformanceDDB() {
	if os.Getenv(DDBEndpointKey) == "" {
		s.T().Skip("DDB_ENDPOINT not set")
	}
	s.T().Setenv(StateBackendEnvKey, BackendDDB)
	s.T().Setenv(NamespaceEnvKey, "conformance")
	st, err := StateBackendFromEnv(context.Background())
	s.Require().NoError(err)
	defer st.Close()
	s.checkStore(st)
}
