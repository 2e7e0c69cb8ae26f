package engine

import (
	"time"

	"github.com/jon4hz/sweepcrew/internal/database"
)

// trash drives an item through single-user consensus into the trash tier.
func (suite *EngineTestSuite) trash(item *database.Media) {
	user := suite.addUser("reaper-voter-"+item.Title, false)
	suite.Require().NoError(suite.engine.Mark(suite.ctx, user.ID, item.ID))
	suite.Require().Equal(database.MediaStatusTrashed, suite.status(item.ID))
}

func (suite *EngineTestSuite) TestReapBoundary() {
	item := suite.addMovie("Heat", 1995, 10)
	suite.trash(item)

	window := suite.engine.cfg.Retention()

	// One second before T+G the item is not reap-eligible.
	suite.clock.Advance(window - time.Second)
	report, err := suite.engine.Reap(suite.ctx)
	suite.Require().NoError(err)
	suite.Zero(report.Reaped)
	suite.Equal(database.MediaStatusTrashed, suite.status(item.ID))

	// At T+G it is.
	suite.clock.Advance(time.Second)
	report, err = suite.engine.Reap(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(1, report.Reaped)
	suite.Equal(database.MediaStatusGone, suite.status(item.ID))

	exists, err := suite.store.Exists("/media_trash/Movies/Heat (1995)")
	suite.Require().NoError(err)
	suite.False(exists)
}

func (suite *EngineTestSuite) TestPersistRemovesReapEligibility() {
	alice := suite.addUser("alice", false)
	item := suite.addMovie("Interstellar", 2014, 1000)
	suite.Require().NoError(suite.engine.Mark(suite.ctx, alice.ID, item.ID))
	suite.Require().Equal(database.MediaStatusTrashed, suite.status(item.ID))

	suite.Require().NoError(suite.engine.Persist(suite.ctx, alice.ID, item.ID))
	suite.Equal(database.MediaStatusPermanent, suite.status(item.ID))

	got, err := suite.db.GetMediaByID(suite.ctx, item.ID)
	suite.Require().NoError(err)
	suite.Equal("/media_permanent/Movies/Interstellar (2014)", got.Path)
	suite.Nil(got.TrashedAt)

	// Long past any grace window, the reaper must not touch it.
	suite.clock.Advance(365 * 24 * time.Hour)
	report, err := suite.engine.Reap(suite.ctx)
	suite.Require().NoError(err)
	suite.Zero(report.Reaped)
	suite.Equal(database.MediaStatusPermanent, suite.status(item.ID))

	exists, err := suite.store.Exists("/media_permanent/Movies/Interstellar (2014)/movie.mkv")
	suite.Require().NoError(err)
	suite.True(exists)
}

func (suite *EngineTestSuite) TestPersistActiveItem() {
	alice := suite.addUser("alice", false)
	bob := suite.addUser("bob", false)
	item := suite.addMovie("Heat", 1995, 10)

	suite.Require().NoError(suite.engine.Persist(suite.ctx, alice.ID, item.ID))
	suite.Equal(database.MediaStatusPermanent, suite.status(item.ID))

	// Consensus on a permanent item is a no-op.
	suite.Require().NoError(suite.engine.Mark(suite.ctx, alice.ID, item.ID))
	suite.Require().NoError(suite.engine.Mark(suite.ctx, bob.ID, item.ID))
	suite.Equal(database.MediaStatusPermanent, suite.status(item.ID))
	suite.Equal(1, suite.store.MoveCount())
}

func (suite *EngineTestSuite) TestPersistIsIdempotent() {
	alice := suite.addUser("alice", false)
	bob := suite.addUser("bob", false)
	item := suite.addMovie("Heat", 1995, 10)

	suite.Require().NoError(suite.engine.Persist(suite.ctx, alice.ID, item.ID))
	suite.Require().NoError(suite.engine.Persist(suite.ctx, bob.ID, item.ID))
	suite.Equal(1, suite.store.MoveCount())

	// Only the first persister is recorded.
	rec, err := suite.db.GetPersistentRecord(suite.ctx, item.ID)
	suite.Require().NoError(err)
	suite.Equal(alice.ID, rec.UserID)
}

func (suite *EngineTestSuite) TestReapSweepsMissingTrashFiles() {
	item := suite.addMovie("Heat", 1995, 10)
	suite.trash(item)

	// The trashed directory disappears outside the engine's control.
	suite.Require().NoError(suite.store.Remove("/media_trash/Movies/Heat (1995)"))

	report, err := suite.engine.Reap(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(1, report.Missing)
	suite.Equal(database.MediaStatusGone, suite.status(item.ID))
}

func (suite *EngineTestSuite) TestReapFailureLeavesItemTrashed() {
	item := suite.addMovie("Heat", 1995, 10)
	suite.trash(item)

	suite.clock.Advance(suite.engine.cfg.Retention())
	suite.store.FailRemoves = true
	report, err := suite.engine.Reap(suite.ctx)
	suite.Require().NoError(err)
	suite.Zero(report.Reaped)
	suite.Equal(database.MediaStatusTrashed, suite.status(item.ID))

	suite.store.FailRemoves = false
	report, err = suite.engine.Reap(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(1, report.Reaped)
	suite.Equal(database.MediaStatusGone, suite.status(item.ID))
}
