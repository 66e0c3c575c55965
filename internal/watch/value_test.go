package watch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type UnitTestSuite struct {
	suite.Suite
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, new(UnitTestSuite))
}

func (s *UnitTestSuite) TestGetSet() {
	v := New(false)
	s.False(v.Get())
	v.Set(true)
	s.True(v.Get())
}

func (s *UnitTestSuite) TestSubscriberSeesLatest() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v := New(0)
	ch := v.Subscribe(ctx)
	v.Set(1)
	v.Set(2)
	v.Set(3)

	select {
	case got := <-ch:
		s.Equal(3, got)
	case <-time.After(time.Second):
		s.FailNow("no notification")
	}
}

func (s *UnitTestSuite) TestUnsubscribeOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	v := New("a")
	ch := v.Subscribe(ctx)
	s.Equal(1, v.Subscribers())

	cancel()
	s.Eventually(func() bool { return v.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-ch
	s.False(open)

	// Set after unsubscribe must not block or panic.
	v.Set("b")
	s.Equal("b", v.Get())
}
