package tasty

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"recipe_importer/internal/domain"
	"recipe_importer/internal/ratelimit"
)

type SourceTestSuite struct {
	suite.Suite
	ctx    context.Context
	logger *slog.Logger
	server *httptest.Server
	mux    *http.ServeMux
}

func (s *SourceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.mux = http.NewServeMux()
	s.server = httptest.NewServer(s.mux)
}

func (s *SourceTestSuite) TearDownTest() {
	s.server.Close()
}

func TestSourceTestSuite(t *testing.T) {
	suite.Run(t, new(SourceTestSuite))
}

func (s *SourceTestSuite) newSource(pageSize int) *Source {
	return s.newSourceWithGate(pageSize, ratelimit.NewGate(0))
}

func (s *SourceTestSuite) newSourceWithGate(pageSize int, gate *ratelimit.Gate) *Source {
	return New(Config{
		BaseURL:        s.server.URL,
		APIKey:         "secret",
		APIHost:        "tasty.p.rapidapi.com",
		PageSize:       pageSize,
		Timeout:        5 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, gate, s.logger)
}

// stepClock never advances on its own, so every gated call after the first
// has to wait and is recorded.
type stepClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func summaries(from, n int) []Summary {
	out := make([]Summary, 0, n)
	for i := 0; i < n; i++ {
		id := int64(from + i + 1)
		out = append(out, Summary{ID: id, Name: fmt.Sprintf("Recipe %d", id)})
	}
	return out
}

func (s *SourceTestSuite) TestDiscover_StopsOnShortPage() {
	var pages int32
	s.mux.HandleFunc("/recipes/list", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pages, 1)
		s.Equal("secret", r.Header.Get("X-RapidAPI-Key"))
		s.Equal("tasty.p.rapidapi.com", r.Header.Get("X-RapidAPI-Host"))
		s.Equal("2", r.URL.Query().Get("size"))

		from, _ := strconv.Atoi(r.URL.Query().Get("from"))
		n := 2
		if from >= 4 {
			n = 1
		}
		writeJSON(w, ListResponse{Count: 5, Results: summaries(from, n)})
	})

	candidates, err := s.newSource(2).Discover(s.ctx, domain.DiscoverOptions{})

	s.NoError(err)
	s.Len(candidates, 5)
	s.Equal(domain.Candidate{ExternalID: "1", Name: "Recipe 1"}, candidates[0])
	s.Equal("5", candidates[4].ExternalID)
	s.Equal(int32(3), atomic.LoadInt32(&pages))
}

func (s *SourceTestSuite) TestDiscover_RespectsMaxItemsAndTag() {
	s.mux.HandleFunc("/recipes/list", func(w http.ResponseWriter, r *http.Request) {
		s.Equal("vegetarian", r.URL.Query().Get("tags"))
		from, _ := strconv.Atoi(r.URL.Query().Get("from"))
		writeJSON(w, ListResponse{Results: summaries(from, 10)})
	})

	candidates, err := s.newSource(10).Discover(s.ctx, domain.DiscoverOptions{MaxItems: 3, Tag: "vegetarian"})

	s.NoError(err)
	s.Len(candidates, 3)
}

func (s *SourceTestSuite) TestDiscover_SkipsCompilationsAndDuplicates() {
	s.mux.HandleFunc("/recipes/list", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, ListResponse{Results: []Summary{
			{ID: 1, Name: "Soup"},
			{ID: 2, Name: "Soup Week", Recipes: []Summary{{ID: 1}}},
			{ID: 1, Name: "Soup"},
		}})
	})

	candidates, err := s.newSource(20).Discover(s.ctx, domain.DiscoverOptions{})

	s.NoError(err)
	s.Equal([]domain.Candidate{{ExternalID: "1", Name: "Soup"}}, candidates)
}

func (s *SourceTestSuite) TestDiscover_ReturnsPartialResultsOnError() {
	s.mux.HandleFunc("/recipes/list", func(w http.ResponseWriter, r *http.Request) {
		from, _ := strconv.Atoi(r.URL.Query().Get("from"))
		if from > 0 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, ListResponse{Results: summaries(0, 2)})
	})

	candidates, err := s.newSource(2).Discover(s.ctx, domain.DiscoverOptions{})

	s.Error(err)
	s.Contains(err.Error(), "fetch page from 2")
	s.Len(candidates, 2)
}

func (s *SourceTestSuite) TestFetchRecipe_Success() {
	s.mux.HandleFunc("/recipes/get-more-info", func(w http.ResponseWriter, r *http.Request) {
		s.Equal("42", r.URL.Query().Get("id"))
		writeJSON(w, Detail{
			ID:   42,
			Name: "Tomato Soup",
			Sections: []Section{{Components: []Component{
				{RawText: "4 tomatoes", Position: 1},
			}}},
			Instructions: []Instruction{{DisplayText: "Simmer.", Position: 1}},
		})
	})

	recipe, err := s.newSource(20).FetchRecipe(s.ctx, "42")

	s.NoError(err)
	s.Equal("tomato-soup", recipe.Slug)
	s.Equal("42", recipe.ExternalID)
	s.Equal(SourceName, recipe.SourceName)
}

func (s *SourceTestSuite) TestFetchRecipe_NotFound() {
	var calls int32
	s.mux.HandleFunc("/recipes/get-more-info", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := s.newSource(20).FetchRecipe(s.ctx, "404")

	s.ErrorIs(err, domain.ErrNotFound)
	s.Equal(int32(1), atomic.LoadInt32(&calls), "not found must not be retried")
}

func (s *SourceTestSuite) TestFetchRecipe_EmptyPayloadIsNotFound() {
	s.mux.HandleFunc("/recipes/get-more-info", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := s.newSource(20).FetchRecipe(s.ctx, "7")

	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *SourceTestSuite) TestFetchRecipe_RetriesTransientErrors() {
	var calls int32
	s.mux.HandleFunc("/recipes/get-more-info", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, Detail{ID: 9, Name: "Pancakes"})
	})

	recipe, err := s.newSource(20).FetchRecipe(s.ctx, "9")

	s.NoError(err)
	s.Equal("pancakes", recipe.Slug)
	s.Equal(int32(3), atomic.LoadInt32(&calls))
}

func (s *SourceTestSuite) TestFetchRecipe_GivesUpAfterMaxAttempts() {
	var calls int32
	s.mux.HandleFunc("/recipes/get-more-info", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := s.newSource(20).FetchRecipe(s.ctx, "9")

	s.Error(err)
	s.Contains(err.Error(), "after 3 attempts")
	s.Equal(int32(3), atomic.LoadInt32(&calls))
}

func (s *SourceTestSuite) TestRequestsPassThroughGate() {
	var requests int32
	s.mux.HandleFunc("/recipes/list", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		from, _ := strconv.Atoi(r.URL.Query().Get("from"))
		n := 2
		if from >= 2 {
			n = 1
		}
		writeJSON(w, ListResponse{Results: summaries(from, n)})
	})
	s.mux.HandleFunc("/recipes/get-more-info", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		writeJSON(w, Detail{ID: 1, Name: "Recipe 1"})
	})

	clock := &stepClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	source := s.newSourceWithGate(2, ratelimit.NewGate(time.Second, ratelimit.WithClock(clock)))

	candidates, err := source.Discover(s.ctx, domain.DiscoverOptions{})
	s.Require().NoError(err)
	s.Len(candidates, 3)

	_, err = source.FetchRecipe(s.ctx, "1")
	s.Require().NoError(err)

	// two list pages and one detail: the first call is free, the others wait
	s.Equal(int32(3), atomic.LoadInt32(&requests))
	s.Equal([]time.Duration{time.Second, time.Second}, clock.waits)
}
