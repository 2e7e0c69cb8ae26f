package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type DatabaseTestSuite struct {
	suite.Suite
	client *Client
	ctx    context.Context
}

func (suite *DatabaseTestSuite) SetupTest() {
	client, err := New(filepath.Join(suite.T().TempDir(), "test.db"))
	suite.Require().NoError(err)
	suite.client = client
	suite.ctx = context.Background()
}

func (suite *DatabaseTestSuite) TearDownTest() {
	if suite.client != nil {
		_ = suite.client.Close()
	}
}

func (suite *DatabaseTestSuite) discover(path string, size int64, at time.Time) *Media {
	_, err := suite.client.UpsertDiscovered(suite.ctx, Discovery{
		Kind:      MediaKindMovie,
		Title:     "interstellar",
		Year:      intPtr(2014),
		Path:      path,
		SizeBytes: size,
	}, at)
	suite.Require().NoError(err)
	item, err := suite.client.GetMediaByPath(suite.ctx, path)
	suite.Require().NoError(err)
	return item
}

func intPtr(v int) *int { return &v }

func (suite *DatabaseTestSuite) TestUpsertAddsThenRefreshes() {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	outcome, err := suite.client.UpsertDiscovered(suite.ctx, Discovery{
		Kind: MediaKindMovie, Title: "interstellar", Year: intPtr(2014),
		Path: "/media/Movies/Interstellar (2014)", SizeBytes: 100,
	}, t0)
	suite.Require().NoError(err)
	suite.Equal(OutcomeAdded, outcome)

	t1 := t0.Add(time.Hour)
	outcome, err = suite.client.UpsertDiscovered(suite.ctx, Discovery{
		Kind: MediaKindMovie, Title: "interstellar", Year: intPtr(2014),
		Path: "/media/Movies/Interstellar (2014)", SizeBytes: 200,
	}, t1)
	suite.Require().NoError(err)
	suite.Equal(OutcomeSeen, outcome)

	item, err := suite.client.GetMediaByPath(suite.ctx, "/media/Movies/Interstellar (2014)")
	suite.Require().NoError(err)
	suite.Equal(int64(200), item.SizeBytes)
	suite.Equal(t1.Unix(), item.LastSeen.Unix())
	suite.Equal(t0.Unix(), item.FirstSeen.Unix())
	suite.Equal(MediaStatusActive, item.Status)
}

func (suite *DatabaseTestSuite) TestUpsertRevivesGone() {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	item := suite.discover("/media/Movies/Interstellar (2014)", 100, t0)

	won, err := suite.client.CommitGone(suite.ctx, item.ID, MediaStatusActive)
	suite.Require().NoError(err)
	suite.True(won)

	t1 := t0.Add(48 * time.Hour)
	outcome, err := suite.client.UpsertDiscovered(suite.ctx, Discovery{
		Kind: MediaKindMovie, Title: "interstellar", Year: intPtr(2014),
		Path: item.Path, SizeBytes: 150,
	}, t1)
	suite.Require().NoError(err)
	suite.Equal(OutcomeRevived, outcome)

	revived, err := suite.client.GetMediaByID(suite.ctx, item.ID)
	suite.Require().NoError(err)
	suite.Equal(MediaStatusActive, revived.Status)
	suite.Equal(t1.Unix(), revived.FirstSeen.Unix())
	suite.Nil(revived.TrashedAt)
}

func (suite *DatabaseTestSuite) TestMarkVanishedOnlyTouchesStaleRowsUnderRoot() {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := suite.discover("/media/Movies/Old (1990)", 10, t0)
	other := suite.discover("/other/Movies/Elsewhere (2001)", 10, t0)

	t1 := t0.Add(time.Hour)
	fresh := suite.discover("/media/Movies/New (2024)", 10, t1)

	n, err := suite.client.MarkVanished(suite.ctx, "/media", t1)
	suite.Require().NoError(err)
	suite.Equal(int64(1), n)

	got, _ := suite.client.GetMediaByID(suite.ctx, stale.ID)
	suite.Equal(MediaStatusGone, got.Status)
	got, _ = suite.client.GetMediaByID(suite.ctx, fresh.ID)
	suite.Equal(MediaStatusActive, got.Status)
	got, _ = suite.client.GetMediaByID(suite.ctx, other.ID)
	suite.Equal(MediaStatusActive, got.Status)
}

func (suite *DatabaseTestSuite) TestMarkVanishedTreatsRootLiterally() {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	// "_" in a LIKE pattern matches any character, so without escaping a
	// root of /srv/media_lib would also sweep /srv/mediaXlib.
	inside := suite.discover("/srv/media_lib/Movies/Old (1990)", 10, t0)
	sibling := suite.discover("/srv/mediaXlib/Movies/Other (1991)", 10, t0)

	n, err := suite.client.MarkVanished(suite.ctx, "/srv/media_lib", t0.Add(time.Hour))
	suite.Require().NoError(err)
	suite.Equal(int64(1), n)

	got, _ := suite.client.GetMediaByID(suite.ctx, inside.ID)
	suite.Equal(MediaStatusGone, got.Status)
	got, _ = suite.client.GetMediaByID(suite.ctx, sibling.ID)
	suite.Equal(MediaStatusActive, got.Status)
}

func (suite *DatabaseTestSuite) TestCASLoserIsNoOp() {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	item := suite.discover("/media/Movies/Interstellar (2014)", 100, t0)

	won, err := suite.client.CommitTrashed(suite.ctx, item.ID, "/media/Movies_trash/Interstellar (2014)", t0)
	suite.Require().NoError(err)
	suite.True(won)

	// Second attempt from the stale active observation must lose.
	won, err = suite.client.CommitTrashed(suite.ctx, item.ID, "/media/Movies_trash/Interstellar (2014)", t0)
	suite.Require().NoError(err)
	suite.False(won)

	got, _ := suite.client.GetMediaByID(suite.ctx, item.ID)
	suite.Equal(MediaStatusTrashed, got.Status)
	suite.Equal("/media/Movies_trash/Interstellar (2014)", got.Path)
	suite.NotNil(got.TrashedAt)
}

func (suite *DatabaseTestSuite) TestCommitPermanentRecordsFirstPersisterOnly() {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	item := suite.discover("/media/Movies/Interstellar (2014)", 100, t0)

	alice, err := suite.client.CreateUser(suite.ctx, "alice", "x", false)
	suite.Require().NoError(err)

	won, err := suite.client.CommitPermanent(suite.ctx, item.ID, MediaStatusActive,
		"/media/Movies_permanent/Interstellar (2014)", alice.ID, t0)
	suite.Require().NoError(err)
	suite.True(won)

	// Permanent is terminal: no transition out of it wins.
	won, err = suite.client.CommitGone(suite.ctx, item.ID, MediaStatusActive)
	suite.Require().NoError(err)
	suite.False(won)
	won, err = suite.client.CommitGone(suite.ctx, item.ID, MediaStatusTrashed)
	suite.Require().NoError(err)
	suite.False(won)

	rec, err := suite.client.GetPersistentRecord(suite.ctx, item.ID)
	suite.Require().NoError(err)
	suite.Equal(alice.ID, rec.UserID)
}

func (suite *DatabaseTestSuite) TestMarksAreIdempotentAndSurviveGone() {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	item := suite.discover("/media/Movies/Interstellar (2014)", 100, t0)
	alice, _ := suite.client.CreateUser(suite.ctx, "alice", "x", false)

	created, err := suite.client.CreateMark(suite.ctx, alice.ID, item.ID, t0)
	suite.Require().NoError(err)
	suite.True(created)

	created, err = suite.client.CreateMark(suite.ctx, alice.ID, item.ID, t0.Add(time.Minute))
	suite.Require().NoError(err)
	suite.False(created)

	count, err := suite.client.CountMarks(suite.ctx, item.ID)
	suite.Require().NoError(err)
	suite.Equal(int64(1), count)

	won, _ := suite.client.CommitGone(suite.ctx, item.ID, MediaStatusActive)
	suite.True(won)

	// Marks on gone media are retained.
	count, err = suite.client.CountMarks(suite.ctx, item.ID)
	suite.Require().NoError(err)
	suite.Equal(int64(1), count)
}

func (suite *DatabaseTestSuite) TestFullyMarkedActiveMediaIDs() {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	item := suite.discover("/media/Movies/Interstellar (2014)", 100, t0)

	alice, _ := suite.client.CreateUser(suite.ctx, "alice", "x", false)
	bob, _ := suite.client.CreateUser(suite.ctx, "bob", "x", false)
	root, _ := suite.client.CreateUser(suite.ctx, "root", "x", true)

	_, err := suite.client.CreateMark(suite.ctx, alice.ID, item.ID, t0)
	suite.Require().NoError(err)

	ids, err := suite.client.FullyMarkedActiveMediaIDs(suite.ctx, false)
	suite.Require().NoError(err)
	suite.Empty(ids)

	_, err = suite.client.CreateMark(suite.ctx, bob.ID, item.ID, t0)
	suite.Require().NoError(err)

	// Everyone counts: the admin's missing vote blocks consensus.
	ids, err = suite.client.FullyMarkedActiveMediaIDs(suite.ctx, false)
	suite.Require().NoError(err)
	suite.Empty(ids)

	// Excluding admins, alice and bob suffice.
	ids, err = suite.client.FullyMarkedActiveMediaIDs(suite.ctx, true)
	suite.Require().NoError(err)
	suite.Equal([]uint{item.ID}, ids)

	_, err = suite.client.CreateMark(suite.ctx, root.ID, item.ID, t0)
	suite.Require().NoError(err)
	ids, err = suite.client.FullyMarkedActiveMediaIDs(suite.ctx, false)
	suite.Require().NoError(err)
	suite.Equal([]uint{item.ID}, ids)
}

func (suite *DatabaseTestSuite) TestFullyMarkedSkipsNonActive() {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	item := suite.discover("/media/Movies/Interstellar (2014)", 100, t0)
	alice, _ := suite.client.CreateUser(suite.ctx, "alice", "x", false)

	_, err := suite.client.CreateMark(suite.ctx, alice.ID, item.ID, t0)
	suite.Require().NoError(err)

	won, _ := suite.client.CommitTrashed(suite.ctx, item.ID, "/media/Movies_trash/Interstellar (2014)", t0)
	suite.True(won)

	ids, err := suite.client.FullyMarkedActiveMediaIDs(suite.ctx, false)
	suite.Require().NoError(err)
	suite.Empty(ids)
}

func (suite *DatabaseTestSuite) TestDeleteUserRemovesMarksAndSessions() {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	item := suite.discover("/media/Movies/Interstellar (2014)", 100, t0)
	alice, _ := suite.client.CreateUser(suite.ctx, "alice", "x", false)

	_, err := suite.client.CreateMark(suite.ctx, alice.ID, item.ID, t0)
	suite.Require().NoError(err)
	suite.Require().NoError(suite.client.CreateSession(suite.ctx, "tok", alice.ID, t0.Add(time.Hour)))

	suite.Require().NoError(suite.client.DeleteUser(suite.ctx, alice.ID))

	count, _ := suite.client.CountMarks(suite.ctx, item.ID)
	suite.Zero(count)
	_, err = suite.client.GetValidSession(suite.ctx, "tok", t0)
	suite.Error(err)
	_, err = suite.client.GetUserByUsername(suite.ctx, "alice")
	suite.Error(err)
}

func (suite *DatabaseTestSuite) TestListTrashedBefore() {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := suite.discover("/media/Movies/A (2000)", 10, t0)
	b := suite.discover("/media/Movies/B (2001)", 10, t0)

	won, _ := suite.client.CommitTrashed(suite.ctx, a.ID, "/media/Movies_trash/A (2000)", t0)
	suite.True(won)
	won, _ = suite.client.CommitTrashed(suite.ctx, b.ID, "/media/Movies_trash/B (2001)", t0.Add(time.Hour))
	suite.True(won)

	due, err := suite.client.ListTrashedBefore(suite.ctx, t0)
	suite.Require().NoError(err)
	suite.Require().Len(due, 1)
	suite.Equal(a.ID, due[0].ID)

	due, err = suite.client.ListTrashedBefore(suite.ctx, t0.Add(2*time.Hour))
	suite.Require().NoError(err)
	suite.Len(due, 2)
}

func (suite *DatabaseTestSuite) TestInviteTokenSingleUse() {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	suite.Require().NoError(suite.client.CreateInviteToken(suite.ctx, "inv", now.Add(time.Hour)))

	ok, err := suite.client.ConsumeInviteToken(suite.ctx, "inv", now)
	suite.Require().NoError(err)
	suite.True(ok)

	ok, err = suite.client.ConsumeInviteToken(suite.ctx, "inv", now)
	suite.Require().NoError(err)
	suite.False(ok)
}

func (suite *DatabaseTestSuite) TestSessionExpiry() {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	alice, _ := suite.client.CreateUser(suite.ctx, "alice", "x", false)
	suite.Require().NoError(suite.client.CreateSession(suite.ctx, "tok", alice.ID, now.Add(time.Hour)))

	session, err := suite.client.GetValidSession(suite.ctx, "tok", now)
	suite.Require().NoError(err)
	suite.Equal(alice.ID, session.UserID)

	_, err = suite.client.GetValidSession(suite.ctx, "tok", now.Add(2*time.Hour))
	suite.Error(err)

	suite.Require().NoError(suite.client.DeleteExpiredSessions(suite.ctx, now.Add(2*time.Hour)))
	_, err = suite.client.GetValidSession(suite.ctx, "tok", now)
	suite.Error(err)
}

func TestDatabaseTestSuite(t *testing.T) {
	suite.Run(t, new(DatabaseTestSuite))
}
