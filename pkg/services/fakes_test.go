package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sentify-hq/sentify-engine/pkg/apperrors"
	"github.com/sentify-hq/sentify-engine/pkg/models"
	"github.com/sentify-hq/sentify-engine/pkg/repositories"
)

// memStore is an in-memory stand-in for Postgres. WithTx serializes
// transactions and restores a snapshot when fn fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	companies     map[string]*models.Company
	articles      []*models.Article
	links         []models.ArticleTopic
	topics        map[string]int
	ratings       map[string]*models.SentimentRating
	follows       []models.Follow
	notifications []*models.Notification
	nextID        int64
	clock         time.Time

	// Failure injection.
	existsErr   error
	insertErr   error
	ratingErr   error
	createNErr  error
	markSentErr error
}

func newMemStore() *memStore {
	return &memStore{
		companies: make(map[string]*models.Company),
		topics:    make(map[string]int),
		ratings:   make(map[string]*models.SentimentRating),
		clock:     time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC),
	}
}

func ratingKey(ticker string, date time.Time) string {
	return ticker + "|" + date.Format(time.DateOnly)
}

func (m *memStore) addCompany(ticker string, sectorID int) {
	m.companies[ticker] = &models.Company{
		Ticker:      ticker,
		Name:        ticker + " Inc",
		SectorID:    sectorID,
		LastUpdated: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) follow(userID int64, tickers ...string) {
	for _, t := range tickers {
		m.nextID++
		m.follows = append(m.follows, models.Follow{ID: m.nextID, UserID: userID, Ticker: t})
	}
}

type memSnapshot struct {
	companies     map[string]models.Company
	articles      []*models.Article
	links         []models.ArticleTopic
	topics        map[string]int
	ratings       map[string]*models.SentimentRating
	follows       []models.Follow
	notifications []models.Notification
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := memSnapshot{
		companies: make(map[string]models.Company, len(m.companies)),
		articles:  append([]*models.Article(nil), m.articles...),
		links:     append([]models.ArticleTopic(nil), m.links...),
		topics:    make(map[string]int, len(m.topics)),
		ratings:   make(map[string]*models.SentimentRating, len(m.ratings)),
		follows:   append([]models.Follow(nil), m.follows...),
	}
	for k, v := range m.companies {
		s.companies[k] = *v
	}
	for k, v := range m.topics {
		s.topics[k] = v
	}
	for k, v := range m.ratings {
		s.ratings[k] = v
	}
	for _, n := range m.notifications {
		s.notifications = append(s.notifications, *n)
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companies = make(map[string]*models.Company, len(s.companies))
	for k, v := range s.companies {
		c := v
		m.companies[k] = &c
	}
	m.articles = s.articles
	m.links = s.links
	m.topics = s.topics
	m.ratings = s.ratings
	m.follows = s.follows
	m.notifications = nil
	for _, n := range s.notifications {
		c := n
		m.notifications = append(m.notifications, &c)
	}
}

type txKey struct{}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) companyRepo() repositories.CompanyRepository { return memCompanies{m} }
func (m *memStore) articleRepo() repositories.ArticleRepository { return memArticles{m} }
func (m *memStore) ratingRepo() repositories.RatingRepository   { return memRatings{m} }
func (m *memStore) topicRepo() repositories.TopicRepository     { return memTopics{m} }
func (m *memStore) followRepo() repositories.FollowRepository   { return memFollows{m} }
func (m *memStore) notificationRepo() repositories.NotificationRepository {
	return memNotifications{m}
}

func (m *memStore) articlesFor(ticker string) []*models.Article {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Article
	for _, a := range m.articles {
		if a.Ticker == ticker {
			out = append(out, a)
		}
	}
	return out
}

func (m *memStore) rating(ticker string, date time.Time) (*models.SentimentRating, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ratings[ratingKey(ticker, date)]
	return r, ok
}

func (m *memStore) lastUpdated(ticker string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.companies[ticker].LastUpdated
}

func (m *memStore) notificationsFor(userID int64) []*models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// memCompanies implements repositories.CompanyRepository.
type memCompanies struct{ m *memStore }

func (r memCompanies) List(ctx context.Context) ([]*models.Company, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Company
	for _, c := range r.m.companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (r memCompanies) ListTickers(ctx context.Context) ([]string, error) {
	companies, _ := r.List(ctx)
	tickers := make([]string, len(companies))
	for i, c := range companies {
		tickers[i] = c.Ticker
	}
	return tickers, nil
}

func (r memCompanies) Get(ctx context.Context, ticker string) (*models.Company, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.companies[ticker]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return c, nil
}

func (r memCompanies) Exists(ctx context.Context, ticker string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	_, ok := r.m.companies[ticker]
	return ok, nil
}

func (r memCompanies) MissingDescriptions(ctx context.Context) ([]string, error) {
	companies, _ := r.List(ctx)
	var out []string
	for _, c := range companies {
		if c.Description == nil {
			out = append(out, c.Ticker)
		}
	}
	return out, nil
}

func (r memCompanies) UpdateDescription(ctx context.Context, ticker, description string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.companies[ticker]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.Description = &description
	return nil
}

func (r memCompanies) AdvanceLastUpdated(ctx context.Context, ticker string, date time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.companies[ticker]
	if !ok {
		return apperrors.ErrNotFound
	}
	if date.After(c.LastUpdated) {
		c.LastUpdated = date
	}
	return nil
}

// memArticles implements repositories.ArticleRepository.
type memArticles struct{ m *memStore }

func (r memArticles) DeleteForCycle(ctx context.Context, ticker string, cycleDate time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var kept []*models.Article
	removed := make(map[int64]bool)
	for _, a := range r.m.articles {
		if a.Ticker == ticker && a.CycleDate.Equal(cycleDate) {
			removed[a.ID] = true
			continue
		}
		kept = append(kept, a)
	}
	var links []models.ArticleTopic
	for _, l := range r.m.links {
		if !removed[l.ArticleID] {
			links = append(links, l)
		}
	}
	r.m.articles = kept
	r.m.links = links
	return int64(len(removed)), nil
}

func (r memArticles) InsertBatch(ctx context.Context, articles []*models.Article) error {
	if r.m.insertErr != nil {
		return r.m.insertErr
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, a := range articles {
		r.m.nextID++
		a.ID = r.m.nextID
		r.m.articles = append(r.m.articles, a)
	}
	return nil
}

func (r memArticles) LinkTopics(ctx context.Context, links []models.ArticleTopic) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.links = append(r.m.links, links...)
	return nil
}

func (r memArticles) ListByTickers(ctx context.Context, tickers []string, limit int) ([]*models.Article, error) {
	var out []*models.Article
	for _, t := range tickers {
		out = append(out, r.m.articlesFor(t)...)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memRatings implements repositories.RatingRepository.
type memRatings struct{ m *memStore }

func (r memRatings) Exists(ctx context.Context, ticker string, date time.Time) (bool, error) {
	if r.m.existsErr != nil {
		return false, r.m.existsErr
	}
	_, ok := r.m.rating(ticker, date)
	return ok, nil
}

func (r memRatings) Create(ctx context.Context, rating *models.SentimentRating) error {
	if r.m.ratingErr != nil {
		return r.m.ratingErr
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	key := ratingKey(rating.Ticker, rating.Date)
	if _, ok := r.m.ratings[key]; ok {
		return fmt.Errorf("rating for %s: %w", key, apperrors.ErrConstraintViolation)
	}
	r.m.nextID++
	rating.ID = r.m.nextID
	r.m.ratings[key] = rating
	return nil
}

func (r memRatings) History(ctx context.Context, ticker string, since time.Time) ([]*models.SentimentRating, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.SentimentRating
	for _, sr := range r.m.ratings {
		if sr.Ticker == ticker && !sr.Date.Before(since) {
			out = append(out, sr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// memTopics implements repositories.TopicRepository.
type memTopics struct{ m *memStore }

func (r memTopics) EnsureTopics(ctx context.Context, names []string) (map[string]int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	ids := make(map[string]int, len(names))
	for _, n := range names {
		id, ok := r.m.topics[n]
		if !ok {
			id = len(r.m.topics) + 1
			r.m.topics[n] = id
		}
		ids[n] = id
	}
	return ids, nil
}

func (r memTopics) List(ctx context.Context) ([]*models.Topic, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Topic
	for n, id := range r.m.topics {
		out = append(out, &models.Topic{ID: id, Name: n})
	}
	return out, nil
}

// memFollows implements repositories.FollowRepository.
type memFollows struct{ m *memStore }

func (r memFollows) FollowerIDs(ctx context.Context, ticker string) ([]int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var ids []int64
	for _, f := range r.m.follows {
		if f.Ticker == ticker {
			ids = append(ids, f.UserID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r memFollows) Toggle(ctx context.Context, userID int64, ticker string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i, f := range r.m.follows {
		if f.UserID == userID && f.Ticker == ticker {
			r.m.follows = append(r.m.follows[:i:i], r.m.follows[i+1:]...)
			return false, nil
		}
	}
	r.m.nextID++
	r.m.follows = append(r.m.follows, models.Follow{ID: r.m.nextID, UserID: userID, Ticker: ticker})
	return true, nil
}

func (r memFollows) ListTickers(ctx context.Context, userID int64) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []string
	for _, f := range r.m.follows {
		if f.UserID == userID {
			out = append(out, f.Ticker)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r memFollows) Popularity(ctx context.Context) ([]models.TickerFollowers, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	counts := make(map[string]int)
	for _, f := range r.m.follows {
		counts[f.Ticker]++
	}
	var out []models.TickerFollowers
	for t, c := range r.m.companies {
		out = append(out, models.TickerFollowers{Ticker: t, SectorID: c.SectorID, Followers: counts[t]})
	}
	// Map order is random; callers must rank.
	return out, nil
}

// memNotifications implements repositories.NotificationRepository.
type memNotifications struct{ m *memStore }

func (r memNotifications) Create(ctx context.Context, n *models.Notification) error {
	if r.m.createNErr != nil {
		return r.m.createNErr
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.nextID++
	n.ID = r.m.nextID
	n.Time = r.m.clock
	r.m.notifications = append(r.m.notifications, n)
	return nil
}

func (r memNotifications) ListUnsent(ctx context.Context, userID int64) ([]*models.Notification, error) {
	var out []*models.Notification
	for _, n := range r.m.notificationsFor(userID) {
		if !n.Sent {
			c := *n
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r memNotifications) MarkSent(ctx context.Context, ids []int64) error {
	if r.m.markSentErr != nil {
		return r.m.markSentErr
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, n := range r.m.notifications {
		if want[n.ID] {
			n.Sent = true
		}
	}
	return nil
}

func (r memNotifications) ListForUser(ctx context.Context, userID int64) ([]*models.Notification, error) {
	return r.m.notificationsFor(userID), nil
}

func (r memNotifications) find(userID, id int64) (*models.Notification, int) {
	for i, n := range r.m.notifications {
		if n.ID == id && n.UserID == userID {
			return n, i
		}
	}
	return nil, -1
}

func (r memNotifications) MarkRead(ctx context.Context, userID, id int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n, _ := r.find(userID, id)
	if n == nil {
		return apperrors.ErrNotFound
	}
	n.Read = true
	return nil
}

func (r memNotifications) Delete(ctx context.Context, userID, id int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	_, i := r.find(userID, id)
	if i < 0 {
		return apperrors.ErrNotFound
	}
	r.m.notifications = append(r.m.notifications[:i:i], r.m.notifications[i+1:]...)
	return nil
}

func (r memNotifications) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var kept []*models.Notification
	var n int64
	for _, x := range r.m.notifications {
		if x.UserID == userID {
			n++
			continue
		}
		kept = append(kept, x)
	}
	r.m.notifications = kept
	return n, nil
}

// mockNewsFeed serves canned feed articles per ticker and records requests.
type mockNewsFeed struct {
	mu       sync.Mutex
	articles map[string][]models.FeedArticle
	errs     map[string]error
	calls    []feedCall
	// entered and release, when set, hold FetchNews until release closes.
	entered chan struct{}
	release chan struct{}
}

type feedCall struct {
	Ticker   string
	From, To time.Time
}

func newMockNewsFeed() *mockNewsFeed {
	return &mockNewsFeed{
		articles: make(map[string][]models.FeedArticle),
		errs:     make(map[string]error),
	}
}

func (f *mockNewsFeed) FetchNews(ctx context.Context, ticker string, from, to time.Time) ([]models.FeedArticle, error) {
	if f.release != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, feedCall{Ticker: ticker, From: from, To: to})
	if err := f.errs[ticker]; err != nil {
		return nil, err
	}
	return f.articles[ticker], nil
}

// mockScraper returns descriptions keyed by URL; unknown URLs are absent.
type mockScraper struct {
	descriptions map[string]string
}

func (s *mockScraper) Scrape(ctx context.Context, url string) (string, bool) {
	d, ok := s.descriptions[url]
	return d, ok
}

// mockClassifier labels text via a lookup and records what it saw.
type mockClassifier struct {
	mu      sync.Mutex
	labels  map[string]string
	err     error
	panics  bool
	inputs  []string
	fallback string
}

func (c *mockClassifier) Classify(ctx context.Context, text string) (models.Sentiment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panics {
		panic("classifier bug")
	}
	c.inputs = append(c.inputs, text)
	if c.err != nil {
		return models.Sentiment{}, c.err
	}
	label, ok := c.labels[text]
	if !ok {
		label = c.fallback
	}
	if label == "" {
		label = models.SentimentPositive
	}
	return models.Sentiment{Label: label, Score: 0.9}, nil
}

// mockProfiler returns company descriptions for the backfill.
type mockProfiler struct {
	descriptions map[string]string
	errs         map[string]error
}

func (p *mockProfiler) CompanyDescription(ctx context.Context, ticker string) (string, error) {
	if err := p.errs[ticker]; err != nil {
		return "", err
	}
	d, ok := p.descriptions[ticker]
	if !ok {
		return "", errors.New("unexpected ticker " + ticker)
	}
	return d, nil
}
