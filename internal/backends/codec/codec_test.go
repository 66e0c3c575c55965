package codec

import (
	"testing"
	"time"

	"availsync/internal/types"

	"github.com/stretchr/testify/suite"
)

type UnitTestSuite struct {
	suite.Suite
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, new(UnitTestSuite))
}

func (s *UnitTestSuite) TestQueueKeepsOrderAndBodies() {
	body := `{"trip_id":"t-1","status":"picked_up"}`
	in := []types.PendingAction{
		{ID: "a", Kind: types.KindTripStatus, Endpoint: "/trips/t-1/status", Method: "PUT", Body: &body,
			CreatedAt: time.Unix(1700000000, 0).UTC(), MaxRetries: 3},
		{ID: "b", Kind: types.KindLocationUpdate, Endpoint: "/location", Method: "POST", RetryCount: 2, MaxRetries: 3},
	}
	encoded, err := EncodeQueue(in)
	s.NoError(err)
	s.NotContains(encoded, "picked_up")

	out, err := DecodeQueue(encoded)
	s.NoError(err)
	s.Len(out, 2)
	s.Equal("a", out[0].ID)
	s.Equal("b", out[1].ID)
	s.Equal(body, *out[0].Body)
	s.Nil(out[1].Body)
	s.Equal(2, out[1].RetryCount)
	s.True(in[0].CreatedAt.Equal(out[0].CreatedAt))
}

func (s *UnitTestSuite) TestEmpty() {
	out, err := DecodeQueue("")
	s.NoError(err)
	s.Empty(out)

	encoded, err := EncodeQueue(nil)
	s.NoError(err)
	out, err = DecodeQueue(encoded)
	s.NoError(err)
	s.Empty(out)
}

func (s *UnitTestSuite) TestGarbage() {
	_, err := DecodeQueue("!!not-base64!!")
	s.Error(err)
}

func (s *UnitTestSuite) TestCloneDoesNotShareBody() {
	body := "x"
	in := []types.PendingAction{{ID: "a", Body: &body}}
	out := CloneQueue(in)
	*out[0].Body = "y"
	s.Equal("x", *in[0].Body)
}
