package engine

import (
	"sync"
	"time"

	"github.com/jon4hz/sweepcrew/internal/database"
)

func (suite *EngineTestSuite) TestConsensusScenario() {
	alice := suite.addUser("alice", false)
	bob := suite.addUser("bob", false)
	item := suite.addMovie("Interstellar", 2014, 1000)

	// One mark out of two eligible users keeps the item active.
	suite.Require().NoError(suite.engine.Mark(suite.ctx, alice.ID, item.ID))
	suite.Equal(database.MediaStatusActive, suite.status(item.ID))
	suite.Zero(suite.store.MoveCount())

	// The second mark completes consensus and trashes the item.
	suite.Require().NoError(suite.engine.Mark(suite.ctx, bob.ID, item.ID))
	suite.Equal(database.MediaStatusTrashed, suite.status(item.ID))
	suite.Equal(1, suite.store.MoveCount())

	got, err := suite.db.GetMediaByID(suite.ctx, item.ID)
	suite.Require().NoError(err)
	suite.Equal("/media_trash/Movies/Interstellar (2014)", got.Path)
	suite.Require().NotNil(got.TrashedAt)
	suite.Equal(suite.clock.Now().Unix(), got.TrashedAt.Unix())

	exists, err := suite.store.Exists("/media_trash/Movies/Interstellar (2014)/movie.mkv")
	suite.Require().NoError(err)
	suite.True(exists)
}

func (suite *EngineTestSuite) TestMarkIsIdempotent() {
	alice := suite.addUser("alice", false)
	suite.addUser("bob", false)
	item := suite.addMovie("Heat", 1995, 10)

	suite.Require().NoError(suite.engine.Mark(suite.ctx, alice.ID, item.ID))
	suite.Require().NoError(suite.engine.Mark(suite.ctx, alice.ID, item.ID))

	count, err := suite.db.CountMarks(suite.ctx, item.ID)
	suite.Require().NoError(err)
	suite.Equal(int64(1), count)
	suite.Equal(database.MediaStatusActive, suite.status(item.ID))
}

func (suite *EngineTestSuite) TestUnmarkBeforeConsensus() {
	alice := suite.addUser("alice", false)
	bob := suite.addUser("bob", false)
	item := suite.addMovie("Heat", 1995, 10)

	suite.Require().NoError(suite.engine.Mark(suite.ctx, alice.ID, item.ID))
	suite.Require().NoError(suite.engine.Unmark(suite.ctx, alice.ID, item.ID))

	// Bob's mark alone no longer completes consensus.
	suite.Require().NoError(suite.engine.Mark(suite.ctx, bob.ID, item.ID))
	suite.Equal(database.MediaStatusActive, suite.status(item.ID))
}

func (suite *EngineTestSuite) TestSingleUserConsensus() {
	alice := suite.addUser("alice", false)
	item := suite.addMovie("Heat", 1995, 10)

	suite.Require().NoError(suite.engine.Mark(suite.ctx, alice.ID, item.ID))
	suite.Equal(database.MediaStatusTrashed, suite.status(item.ID))
}

func (suite *EngineTestSuite) TestConcurrentMarksProduceOneMove() {
	item := suite.addMovie("Interstellar", 2014, 1000)

	users := make([]*database.User, 5)
	for i, name := range []string{"a", "b", "c", "d", "e"} {
		users[i] = suite.addUser(name, false)
	}

	var wg sync.WaitGroup
	for _, user := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			suite.NoError(suite.engine.Mark(suite.ctx, user.ID, item.ID))
		}()
	}
	wg.Wait()

	suite.Equal(database.MediaStatusTrashed, suite.status(item.ID))
	suite.Equal(1, suite.store.MoveCount())
}

func (suite *EngineTestSuite) TestMoveFailureKeepsItemActive() {
	alice := suite.addUser("alice", false)
	item := suite.addMovie("Heat", 1995, 10)

	suite.store.FailMoves = true
	// The mark succeeds even though the triggered move fails.
	suite.Require().NoError(suite.engine.Mark(suite.ctx, alice.ID, item.ID))
	suite.Equal(database.MediaStatusActive, suite.status(item.ID))

	// The next evaluation pass retries the move.
	suite.store.FailMoves = false
	suite.Require().NoError(suite.engine.EvaluateAll(suite.ctx))
	suite.Equal(database.MediaStatusTrashed, suite.status(item.ID))
}

func (suite *EngineTestSuite) TestEvaluateAllAfterUserDeletion() {
	alice := suite.addUser("alice", false)
	bob := suite.addUser("bob", false)
	item := suite.addMovie("Heat", 1995, 10)

	suite.Require().NoError(suite.engine.Mark(suite.ctx, alice.ID, item.ID))
	suite.Equal(database.MediaStatusActive, suite.status(item.ID))

	// Bob leaves; alice's mark now satisfies the shrunken eligible set.
	suite.Require().NoError(suite.db.DeleteUser(suite.ctx, bob.ID))
	suite.Require().NoError(suite.engine.EvaluateAll(suite.ctx))
	suite.Equal(database.MediaStatusTrashed, suite.status(item.ID))
}

func (suite *EngineTestSuite) TestMarksOnGoneMediaCauseNoAction() {
	alice := suite.addUser("alice", false)
	item := suite.addMovie("Heat", 1995, 10)

	won, err := suite.db.CommitGone(suite.ctx, item.ID, database.MediaStatusActive)
	suite.Require().NoError(err)
	suite.True(won)

	suite.Require().NoError(suite.engine.Mark(suite.ctx, alice.ID, item.ID))
	suite.Equal(database.MediaStatusGone, suite.status(item.ID))
	suite.Zero(suite.store.MoveCount())

	// Rediscovery revives the item; the retained mark completes consensus on
	// the next evaluation.
	suite.clock.Advance(time.Hour)
	outcome, err := suite.db.UpsertDiscovered(suite.ctx, database.Discovery{
		Kind: database.MediaKindMovie, Title: "heat", Year: item.Year,
		Path: item.Path, SizeBytes: 10,
	}, suite.clock.Now())
	suite.Require().NoError(err)
	suite.Equal(database.OutcomeRevived, outcome)

	suite.Require().NoError(suite.engine.EvaluateAll(suite.ctx))
	suite.Equal(database.MediaStatusTrashed, suite.status(item.ID))
}
