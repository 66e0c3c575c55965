package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"availsync/internal/types"

	"github.com/stretchr/testify/suite"
)

type UnitTestSuite struct {
	suite.Suite
	path  string
	store *StateStore
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, new(UnitTestSuite))
}

func (s *UnitTestSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "state", "availsync.db")
	st, err := Open(s.path)
	s.Require().NoError(err)
	s.store = st
}

func (s *UnitTestSuite) TearDownTest() {
	_ = s.store.Close()
}

func (s *UnitTestSuite) reopen() {
	s.Require().NoError(s.store.Close())
	st, err := Open(s.path)
	s.Require().NoError(err)
	s.store = st
}

func (s *UnitTestSuite) TestAvailabilityRoundTripAcrossRestart() {
	ctx := context.Background()
	_, found, err := s.store.LoadAvailability(ctx)
	s.NoError(err)
	s.False(found)

	at := time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC)
	s.NoError(s.store.SaveAvailability(ctx, types.AvailabilityRecord{IsAvailable: true, LastUpdatedAt: at, PendingSync: true}))
	s.NoError(s.store.SaveAvailability(ctx, types.AvailabilityRecord{IsAvailable: false, LastUpdatedAt: at, PendingSync: true, LastConfirmed: true}))

	s.reopen()
	rec, found, err := s.store.LoadAvailability(ctx)
	s.NoError(err)
	s.True(found)
	s.False(rec.IsAvailable)
	s.True(rec.PendingSync)
	s.True(rec.LastConfirmed)
	s.True(at.Equal(rec.LastUpdatedAt))
}

func (s *UnitTestSuite) TestQueueOrderAcrossRestart() {
	ctx := context.Background()
	body := `{"lat":1.5,"lng":2.5}`
	actions := []types.PendingAction{
		{ID: "3", Kind: types.KindGeneric, Endpoint: "/c", Method: "POST", CreatedAt: time.Now(), MaxRetries: 3},
		{ID: "1", Kind: types.KindLocationUpdate, Endpoint: "/a", Method: "POST", Body: &body, CreatedAt: time.Now(), MaxRetries: 3},
		{ID: "2", Kind: types.KindAcceptAssignment, Endpoint: "/b", Method: "PUT", CreatedAt: time.Now(), RetryCount: 1, MaxRetries: 5},
	}
	s.NoError(s.store.SaveQueue(ctx, actions))

	s.reopen()
	got, err := s.store.LoadQueue(ctx)
	s.NoError(err)
	s.Len(got, 3)
	s.Equal([]string{"3", "1", "2"}, []string{got[0].ID, got[1].ID, got[2].ID})
	s.Equal(body, *got[1].Body)
	s.Nil(got[0].Body)
	s.Equal(1, got[2].RetryCount)
	s.Equal(5, got[2].MaxRetries)

	s.NoError(s.store.SaveQueue(ctx, got[1:]))
	got, err = s.store.LoadQueue(ctx)
	s.NoError(err)
	s.Len(got, 2)
	s.Equal("1", got[0].ID)
}

func (s *UnitTestSuite) TestDuplicateIDsRollBack() {
	ctx := context.Background()
	s.NoError(s.store.SaveQueue(ctx, []types.PendingAction{{ID: "keep", Kind: types.KindGeneric}}))

	err := s.store.SaveQueue(ctx, []types.PendingAction{{ID: "x"}, {ID: "x"}})
	s.ErrorIs(err, types.ErrStoreAccess)

	got, err := s.store.LoadQueue(ctx)
	s.NoError(err)
	s.Len(got, 1)
	s.Equal("keep", got[0].ID)
}
