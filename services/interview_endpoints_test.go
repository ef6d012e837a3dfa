package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mockview/backend/analysis"
	"github.com/mockview/backend/models"
	"github.com/mockview/backend/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSessionStore is an in-memory SessionStore. The mutex around the counter
// mirrors the row lock the real store takes, so concurrent submissions get
// unique, gap-free session counts.
type fakeSessionStore struct {
	mu           sync.Mutex
	sessionCount int
	bundles      map[int]*analysis.Bundle
	ingested     map[int][]models.AnalysisSample
	// set to a non-nil error to simulate a store failure
	persistErr error
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		bundles:  make(map[int]*analysis.Bundle),
		ingested: make(map[int][]models.AnalysisSample),
	}
}

func (f *fakeSessionStore) PersistSubmission(ctx context.Context, userID string, bundle *analysis.Bundle) (*repository.SubmissionRecord, error) {
	if f.persistErr != nil {
		return nil, f.persistErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sessionCount++
	count := f.sessionCount
	// The submitted sample set supersedes anything ingested for this session.
	delete(f.ingested, count)
	record := &repository.SubmissionRecord{
		SessionCount: count,
		InterviewID:  fmt.Sprintf("interview-%d", count),
		ResultID:     fmt.Sprintf("result-%d", count),
		MeanScore:    bundle.MeanScore,
	}
	for i := range bundle.Samples {
		record.AnalysisIDs = append(record.AnalysisIDs, fmt.Sprintf("sample-%d-%d", count, i))
	}
	f.bundles[count] = bundle
	return record, nil
}

func (f *fakeSessionStore) IngestSamples(ctx context.Context, userID string, samples []models.AnalysisSample) (int, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := f.sessionCount + 1
	var ids []string
	for range samples {
		ids = append(ids, fmt.Sprintf("sample-%d-%d", count, len(f.ingested[count])))
		f.ingested[count] = append(f.ingested[count], models.AnalysisSample{SessionCount: count})
	}
	return count, ids, nil
}

func (f *fakeSessionStore) GetSessionView(ctx context.Context, userID string, sessionCount int) (*repository.SessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bundle := f.bundles[sessionCount]
	pending := f.ingested[sessionCount]
	if bundle == nil && len(pending) == 0 {
		return nil, nil
	}

	view := &repository.SessionView{SessionCount: sessionCount}
	view.Samples = append(view.Samples, pending...)
	if bundle != nil {
		view.Samples = append(view.Samples, bundle.Samples...)
		view.Interview = &models.InterviewSession{
			SessionCount: sessionCount,
			Answers:      bundle.Answers,
			MeanScore:    bundle.MeanScore,
		}
		view.Average = &models.EmotionAverage{
			SessionCount: sessionCount,
			SampleCount:  bundle.Average.SampleCount,
			FinalScore:   bundle.FinalScore,
		}
	}
	view.Status = analysis.StatusFor(len(view.Samples))
	return view, nil
}

func (f *fakeSessionStore) ListSessionViews(ctx context.Context, userID string, q repository.HistoryQuery) ([]repository.SessionView, int64, error) {
	f.mu.Lock()
	counts := make([]int, 0, len(f.bundles))
	for count := f.sessionCount; count >= 1; count-- {
		if _, ok := f.bundles[count]; ok {
			counts = append(counts, count)
		}
	}
	f.mu.Unlock()

	views := make([]repository.SessionView, 0, len(counts))
	for _, count := range counts {
		view, _ := f.GetSessionView(ctx, userID, count)
		views = append(views, *view)
	}
	return views, int64(len(views)), nil
}

func (f *fakeSessionStore) GetUserStats(ctx context.Context, userID string) (*repository.UserStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &repository.UserStats{SubmittedSessions: int64(len(f.bundles))}, nil
}

func testUser() *models.User {
	return &models.User{ID: "user-1", Email: "test@example.com", Name: "Test User"}
}

// newTestRouter wires the endpoints behind a middleware that injects the
// authenticated user, the way the auth middleware does in production.
func newTestRouter(store SessionStore, user *models.User) *chi.Mux {
	e := NewInterviewEndpoints(store)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), "user", user)))
		})
	})
	e.RegisterRoutes(r)
	return r
}

func testEmotionVector() map[string]float64 {
	return map[string]float64{
		"angry": 0.01, "disgust": 0.01, "fear": 0.02, "happy": 0.7,
		"neutral": 0.2, "sad": 0.03, "surprise": 0.03,
	}
}

func submitRequestBody(t *testing.T, sampleCount int, meanScore *float64) *bytes.Buffer {
	t.Helper()
	emotion := testEmotionVector()
	req := SubmitInterviewRequest{
		QuestionsAnswers: []QuestionAnswerPayload{
			{Question: "Tell me about yourself", Answer: "...", Order: 2, Score: 82},
			{Question: "Why this company", Answer: "...", Order: 1, Score: 74},
			{Question: "Describe a conflict", Answer: "...", Order: 3, Score: 68},
		},
		MeanScore: meanScore,
	}
	for i := 0; i < sampleCount; i++ {
		req.AnalysisResults = append(req.AnalysisResults, AnalysisPayload{
			Timestamp: time.Date(2025, 3, 1, 10, 0, i, 0, time.UTC),
			Result: []AnalysisResultPayload{{
				FaceConfidence:  0.98,
				DominantEmotion: "happy",
				DominantGender:  "Woman",
				Age:             27,
				Emotion:         emotion,
				Region:          RegionPayload{X: 10, Y: 20, W: 100, H: 100},
			}},
		})
	}

	body, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func ingestRequestBody(t *testing.T, sampleCount int) *bytes.Buffer {
	t.Helper()
	var req IngestAnalysisRequest
	for i := 0; i < sampleCount; i++ {
		req.AnalysisResults = append(req.AnalysisResults, AnalysisPayload{
			Timestamp: time.Date(2025, 3, 1, 9, 59, i, 0, time.UTC),
			Result: []AnalysisResultPayload{{
				FaceConfidence:  0.95,
				DominantEmotion: "neutral",
				Emotion:         testEmotionVector(),
			}},
		})
	}

	body, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestSubmitHandlerSuccess(t *testing.T) {
	store := newFakeSessionStore()
	router := newTestRouter(store, testUser())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/interviews", submitRequestBody(t, 6, nil)))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		SessionCount int      `json:"session_count"`
		InterviewID  string   `json:"interview_id"`
		ResultID     string   `json:"result_id"`
		AnalysisIDs  []string `json:"analysis_ids"`
		MeanScore    float64  `json:"mean_score"`
		Status       string   `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 1, resp.SessionCount)
	assert.NotEmpty(t, resp.InterviewID)
	assert.NotEmpty(t, resp.ResultID)
	assert.Len(t, resp.AnalysisIDs, 6)
	assert.Equal(t, 74.7, resp.MeanScore)
	assert.Equal(t, analysis.StatusCompleted, resp.Status)

	// All sibling records carry the assigned session count.
	view, err := store.GetSessionView(context.Background(), "user-1", 1)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, analysis.StatusCompleted, view.Status)
	require.NotNil(t, view.Interview)
	assert.Equal(t, 1, view.Interview.SessionCount)
	assert.Len(t, view.Samples, 6)
}

func TestSubmitHandlerPartialInProgress(t *testing.T) {
	store := newFakeSessionStore()
	router := newTestRouter(store, testUser())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/interviews", submitRequestBody(t, 3, nil)))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, analysis.StatusInProgress, resp.Status)
}

func TestSubmitHandlerMeanScoreMismatch(t *testing.T) {
	store := newFakeSessionStore()
	router := newTestRouter(store, testUser())

	declared := 75.0
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/interviews", submitRequestBody(t, 6, &declared)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.bundles, "a rejected submission must not reach the store")
}

func TestSubmitHandlerMeanScoreBoundary(t *testing.T) {
	store := newFakeSessionStore()
	router := newTestRouter(store, testUser())

	declared := 74.8
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/interviews", submitRequestBody(t, 6, &declared)))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSubmitHandlerStoreConflict(t *testing.T) {
	store := newFakeSessionStore()
	store.persistErr = fmt.Errorf("%w: deadlock detected", repository.ErrConflict)
	router := newTestRouter(store, testUser())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/interviews", submitRequestBody(t, 6, nil)))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestConcurrentSubmissionsUniqueCounts(t *testing.T) {
	store := newFakeSessionStore()
	router := newTestRouter(store, testUser())

	const n = 25
	counts := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("POST", "/interviews", submitRequestBody(t, 6, nil)))
			assert.Equal(t, http.StatusCreated, w.Code)

			var resp struct {
				SessionCount int `json:"session_count"`
			}
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			counts <- resp.SessionCount
		}()
	}
	wg.Wait()
	close(counts)

	seen := make(map[int]bool, n)
	for count := range counts {
		assert.False(t, seen[count], "session count %d assigned twice", count)
		seen[count] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, store.sessionCount, "counts must be gap-free")
}

func TestIngestFlipsStatusWithoutAlteringSamples(t *testing.T) {
	store := newFakeSessionStore()
	user := testUser()
	ctx := context.Background()

	first := []models.AnalysisSample{{}, {}, {}}
	count, firstIDs, err := store.IngestSamples(ctx, user.ID, first)
	require.NoError(t, err)
	require.Len(t, firstIDs, 3)

	view, err := store.GetSessionView(ctx, user.ID, count)
	require.NoError(t, err)
	assert.Equal(t, analysis.StatusInProgress, view.Status)

	_, secondIDs, err := store.IngestSamples(ctx, user.ID, []models.AnalysisSample{{}, {}, {}})
	require.NoError(t, err)

	view, err = store.GetSessionView(ctx, user.ID, count)
	require.NoError(t, err)
	assert.Equal(t, analysis.StatusCompleted, view.Status)
	assert.Len(t, view.Samples, 6)
	for _, id := range firstIDs {
		assert.NotContains(t, secondIDs, id, "earlier sample rows must not be rewritten")
	}
}

func TestSubmitReplacesIngestedSamples(t *testing.T) {
	store := newFakeSessionStore()
	router := newTestRouter(store, testUser())

	// Snapshots stream in while the session is running, then the client
	// submits the full payload carrying the same sample set.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/analyses", ingestRequestBody(t, 6)))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/interviews", submitRequestBody(t, 6, nil)))
	require.Equal(t, http.StatusCreated, w.Code)

	view, err := store.GetSessionView(context.Background(), "user-1", 1)
	require.NoError(t, err)
	require.NotNil(t, view)
	require.NotNil(t, view.Average)
	assert.Len(t, view.Samples, 6, "submitted samples must supersede the ingested ones")
	assert.Equal(t, view.Average.SampleCount, len(view.Samples))
	assert.Equal(t, analysis.StatusCompleted, view.Status)
}

func TestSubmitCarriesFinalScore(t *testing.T) {
	store := newFakeSessionStore()
	router := newTestRouter(store, testUser())

	var req SubmitInterviewRequest
	require.NoError(t, json.Unmarshal(submitRequestBody(t, 6, nil).Bytes(), &req))
	score := 88.5
	req.FinalScore = &score
	body, err := json.Marshal(req)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/interviews", bytes.NewBuffer(body)))
	require.Equal(t, http.StatusCreated, w.Code)

	view, err := store.GetSessionView(context.Background(), "user-1", 1)
	require.NoError(t, err)
	require.NotNil(t, view.Average)
	require.NotNil(t, view.Average.FinalScore)
	assert.Equal(t, 88.5, *view.Average.FinalScore)

	// Out of range is rejected before the pipeline runs.
	score = 101
	body, err = json.Marshal(req)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/interviews", bytes.NewBuffer(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSessionHandlerNotFound(t *testing.T) {
	router := newTestRouter(newFakeSessionStore(), testUser())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/interviews/42", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoryHandlerIdempotent(t *testing.T) {
	store := newFakeSessionStore()
	router := newTestRouter(store, testUser())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/interviews", submitRequestBody(t, 6, nil)))
	require.Equal(t, http.StatusCreated, w.Code)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest("GET", "/interviews?page=1&limit=10", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest("GET", "/interviews?page=1&limit=10", nil))
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestHistoryHandlerRejectsBadPaging(t *testing.T) {
	router := newTestRouter(newFakeSessionStore(), testUser())

	for _, target := range []string{
		"/interviews?page=0",
		"/interviews?limit=0",
		"/interviews?limit=1000",
		"/interviews?from=notadate",
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", target, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}
