//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentify-hq/sentify-engine/pkg/apperrors"
	"github.com/sentify-hq/sentify-engine/pkg/database"
	"github.com/sentify-hq/sentify-engine/pkg/models"
	"github.com/sentify-hq/sentify-engine/pkg/testhelpers"
)

var cycleDay = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

// repoTestContext holds test dependencies shared by repository tests.
type repoTestContext struct {
	t  *testing.T
	db *database.DB

	companies     CompanyRepository
	articles      ArticleRepository
	ratings       RatingRepository
	topics        TopicRepository
	follows       FollowRepository
	notifications NotificationRepository
	reference     ReferenceRepository
}

func setupRepoTest(t *testing.T) *repoTestContext {
	engineDB := testhelpers.GetEngineDB(t)
	engineDB.Truncate(t)

	db := engineDB.DB
	tc := &repoTestContext{
		t:             t,
		db:            db,
		companies:     NewCompanyRepository(db),
		articles:      NewArticleRepository(db),
		ratings:       NewRatingRepository(db),
		topics:        NewTopicRepository(db),
		follows:       NewFollowRepository(db),
		notifications: NewNotificationRepository(db),
		reference:     NewReferenceRepository(db),
	}
	tc.seedCompanies()
	return tc
}

func (tc *repoTestContext) seedCompanies() {
	tc.t.Helper()
	ctx := context.Background()

	sectors, err := tc.reference.UpsertSectors(ctx, []string{"Technology", "Food and Beverage"})
	require.NoError(tc.t, err)

	err = tc.reference.UpsertCompanies(ctx, []*models.Company{
		{Ticker: "AAPL", Name: "Apple", SectorID: sectors["Technology"]},
		{Ticker: "MSFT", Name: "Microsoft", SectorID: sectors["Technology"]},
		{Ticker: "KO", Name: "Coca-Cola", SectorID: sectors["Food and Beverage"]},
	})
	require.NoError(tc.t, err)
}

func (tc *repoTestContext) createUser(email string) int64 {
	tc.t.Helper()
	var id int64
	err := tc.db.QueryRow(context.Background(), `
		INSERT INTO users (name, email, password_hash, verified)
		VALUES ($1, $2, 'x', TRUE)
		RETURNING id`, email, email).Scan(&id)
	require.NoError(tc.t, err)
	return id
}

func strPtr(s string) *string { return &s }

func TestCompanyRepository_AdvanceLastUpdatedNeverRegresses(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := context.Background()

	require.NoError(t, tc.companies.AdvanceLastUpdated(ctx, "AAPL", cycleDay))
	require.NoError(t, tc.companies.AdvanceLastUpdated(ctx, "AAPL", cycleDay.AddDate(0, 0, -3)))

	c, err := tc.companies.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, c.LastUpdated.Equal(cycleDay), "got %s", c.LastUpdated)

	err = tc.companies.AdvanceLastUpdated(ctx, "NOPE", cycleDay)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCompanyRepository_Descriptions(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := context.Background()

	missing, err := tc.companies.MissingDescriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "KO", "MSFT"}, missing)

	require.NoError(t, tc.companies.UpdateDescription(ctx, "KO", "Beverages."))

	missing, err = tc.companies.MissingDescriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, missing)

	exists, err := tc.companies.Exists(ctx, "KO")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestArticleRepository_InsertLinkListAndDelete(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := context.Background()

	topicIDs, err := tc.topics.EnsureTopics(ctx, []string{"Earnings", "Technology", "IPO"})
	require.NoError(t, err)
	require.Len(t, topicIDs, 3)

	articles := []*models.Article{
		{
			URL: "https://example.com/a", Title: "A", Ticker: "AAPL", CycleDate: cycleDay,
			Source: "Reuters", SourceDomain: "reuters.com", Published: cycleDay,
			Description: strPtr("desc"), SentimentLabel: models.SentimentPositive, SentimentScore: 0.9,
		},
		{
			URL: "https://example.com/b", Title: "B", Ticker: "AAPL", CycleDate: cycleDay,
			Source: "Reuters", SourceDomain: "reuters.com", Published: cycleDay,
			SentimentLabel: models.SentimentNegative, SentimentScore: 0.7,
		},
	}

	err = tc.db.WithTx(ctx, func(ctx context.Context) error {
		if err := tc.articles.InsertBatch(ctx, articles); err != nil {
			return err
		}
		return tc.articles.LinkTopics(ctx, []models.ArticleTopic{
			{ArticleID: articles[0].ID, TopicID: topicIDs["Technology"], Rank: 1},
			{ArticleID: articles[0].ID, TopicID: topicIDs["Earnings"], Rank: 2},
		})
	})
	require.NoError(t, err)
	assert.NotZero(t, articles[0].ID)
	assert.NotZero(t, articles[1].ID)

	listed, err := tc.articles.ListByTickers(ctx, []string{"AAPL", "KO"}, 50)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "B", listed[0].Title, "same day sorts newest id first")
	assert.Empty(t, listed[0].Topics)
	assert.Equal(t, []string{"Technology", "Earnings"}, listed[1].Topics)

	deleted, err := tc.articles.DeleteForCycle(ctx, "AAPL", cycleDay)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var links int
	require.NoError(t, tc.db.QueryRow(ctx, `SELECT COUNT(*) FROM article_topics`).Scan(&links))
	assert.Zero(t, links, "topic links cascade")
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := context.Background()
	boom := errors.New("classifier exploded")

	err := tc.db.WithTx(ctx, func(ctx context.Context) error {
		if err := tc.ratings.Create(ctx, &models.SentimentRating{Ticker: "AAPL", Date: cycleDay, Rating: 50}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	exists, err := tc.ratings.Exists(ctx, "AAPL", cycleDay)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRatingRepository_DuplicateIsConstraintViolation(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := context.Background()

	require.NoError(t, tc.ratings.Create(ctx, &models.SentimentRating{Ticker: "KO", Date: cycleDay, Rating: 75}))

	err := tc.ratings.Create(ctx, &models.SentimentRating{Ticker: "KO", Date: cycleDay, Rating: 10})
	assert.ErrorIs(t, err, apperrors.ErrConstraintViolation)

	history, err := tc.ratings.History(ctx, "KO", cycleDay.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 75, history[0].Rating)
}

func TestFollowRepository_ToggleAndPopularity(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := context.Background()
	alice := tc.createUser("alice@example.com")
	bob := tc.createUser("bob@example.com")

	followed, err := tc.follows.Toggle(ctx, alice, "AAPL")
	require.NoError(t, err)
	assert.True(t, followed)
	_, err = tc.follows.Toggle(ctx, bob, "AAPL")
	require.NoError(t, err)
	_, err = tc.follows.Toggle(ctx, bob, "MSFT")
	require.NoError(t, err)

	ids, err := tc.follows.FollowerIDs(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, []int64{alice, bob}, ids)

	pop, err := tc.follows.Popularity(ctx)
	require.NoError(t, err)
	counts := map[string]int{}
	for _, p := range pop {
		counts[p.Ticker] = p.Followers
	}
	assert.Equal(t, map[string]int{"AAPL": 2, "KO": 0, "MSFT": 1}, counts)

	followed, err = tc.follows.Toggle(ctx, bob, "MSFT")
	require.NoError(t, err)
	assert.False(t, followed)

	tickers, err := tc.follows.ListTickers(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, tickers)
}

func TestNotificationRepository_Lifecycle(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := context.Background()
	user := tc.createUser("carol@example.com")

	first := &models.Notification{UserID: user, Message: models.NewArticlesMessage("AAPL")}
	second := &models.Notification{UserID: user, Message: models.NewArticlesMessage("KO")}
	require.NoError(t, tc.notifications.Create(ctx, first))
	require.NoError(t, tc.notifications.Create(ctx, second))
	assert.False(t, first.Sent)
	assert.False(t, first.Read)

	unsent, err := tc.notifications.ListUnsent(ctx, user)
	require.NoError(t, err)
	require.Len(t, unsent, 2)
	assert.Equal(t, first.ID, unsent[0].ID)

	require.NoError(t, tc.notifications.MarkSent(ctx, []int64{first.ID}))
	unsent, err = tc.notifications.ListUnsent(ctx, user)
	require.NoError(t, err)
	require.Len(t, unsent, 1)
	assert.Equal(t, second.ID, unsent[0].ID)

	require.NoError(t, tc.notifications.MarkRead(ctx, user, second.ID))
	assert.ErrorIs(t, tc.notifications.Delete(ctx, user+1, first.ID), apperrors.ErrNotFound)
	require.NoError(t, tc.notifications.Delete(ctx, user, first.ID))

	all, err := tc.notifications.ListForUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Read)

	n, err := tc.notifications.DeleteAll(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTopicRepository_EnsureTopicsIsIdempotent(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := context.Background()

	first, err := tc.topics.EnsureTopics(ctx, []string{"Blockchain", "IPO"})
	require.NoError(t, err)
	second, err := tc.topics.EnsureTopics(ctx, []string{"IPO", "Blockchain", "IPO"})
	require.NoError(t, err)

	assert.Equal(t, first, second)

	all, err := tc.topics.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
