package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mockview/backend/analysis"
	"github.com/mockview/backend/models"
	"github.com/mockview/backend/repository"
)

// SessionStore is the persistence collaborator of the interview endpoints.
// *repository.GORMRepository implements it; tests swap in an in-memory fake.
type SessionStore interface {
	PersistSubmission(ctx context.Context, userID string, bundle *analysis.Bundle) (*repository.SubmissionRecord, error)
	IngestSamples(ctx context.Context, userID string, samples []models.AnalysisSample) (int, []string, error)
	GetSessionView(ctx context.Context, userID string, sessionCount int) (*repository.SessionView, error)
	ListSessionViews(ctx context.Context, userID string, q repository.HistoryQuery) ([]repository.SessionView, int64, error)
	GetUserStats(ctx context.Context, userID string) (*repository.UserStats, error)
}

type InterviewEndpoints struct {
	store SessionStore
}

func NewInterviewEndpoints(store SessionStore) *InterviewEndpoints {
	return &InterviewEndpoints{store: store}
}

type QuestionAnswerPayload struct {
	Question string `json:"question" validate:"required"`
	Answer   string `json:"answer" validate:"required"`
	Order    int    `json:"order" validate:"required,min=1,max=3"`
	Score    int    `json:"score" validate:"min=0,max=100"`
}

type RegionPayload struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// AnalysisResultPayload is one detected face from the upstream analyzer. The
// emotion scores stay a map so the pipeline can reject samples with missing
// keys instead of defaulting them to zero.
type AnalysisResultPayload struct {
	FaceConfidence  float64            `json:"face_confidence" validate:"gte=0,lte=1"`
	DominantEmotion string             `json:"dominant_emotion"`
	DominantGender  string             `json:"dominant_gender"`
	Age             int                `json:"age"`
	Emotion         map[string]float64 `json:"emotion" validate:"required"`
	Region          RegionPayload      `json:"region"`
}

// AnalysisPayload is one analyzer snapshot. The analyzer reports an array of
// detected faces; the first one is the interviewee.
type AnalysisPayload struct {
	Timestamp time.Time               `json:"timestamp" validate:"required"`
	Result    []AnalysisResultPayload `json:"result" validate:"required,min=1,dive"`
}

type SubmitInterviewRequest struct {
	QuestionsAnswers []QuestionAnswerPayload `json:"questions_answers" validate:"required,len=3,dive"`
	MeanScore        *float64                `json:"mean_score,omitempty" validate:"omitempty,gte=0,lte=100"`
	FinalScore       *float64                `json:"final_score,omitempty" validate:"omitempty,gte=0,lte=100"`
	AnalysisResults  []AnalysisPayload       `json:"analysis_results" validate:"required,min=1,dive"`
}

type IngestAnalysisRequest struct {
	AnalysisResults []AnalysisPayload `json:"analysis_results" validate:"required,min=1,dive"`
}

func (e *InterviewEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/interviews", func(r chi.Router) {
		r.Post("/", e.SubmitHandler)
		r.Get("/", e.HistoryHandler)
		r.Get("/{count}", e.GetSessionHandler)
	})
	r.Post("/analyses", e.IngestHandler)
	r.Get("/stats", e.StatsHandler)
}

// SubmitHandler runs the full submission pipeline: validate, build the
// session records, persist them in one transaction.
func (e *InterviewEndpoints) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	var req SubmitInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bundle, err := analysis.Build(analysis.BuildInput{
		Answers:    toAnswerInputs(req.QuestionsAnswers),
		MeanScore:  req.MeanScore,
		FinalScore: req.FinalScore,
		Samples:    toSampleInputs(req.AnalysisResults),
	})
	if err != nil {
		slog.Error("Submission rejected", "error", err, "user_id", user.ID)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, err := e.store.PersistSubmission(r.Context(), user.ID, bundle)
	if err != nil {
		e.writeStoreError(w, err, user.ID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session_count": record.SessionCount,
		"interview_id":  record.InterviewID,
		"result_id":     record.ResultID,
		"analysis_ids":  record.AnalysisIDs,
		"mean_score":    record.MeanScore,
		"status":        bundle.Status,
	})

	slog.Info("Interview submitted", "user_id", user.ID, "session_count", record.SessionCount)
}

// IngestHandler records analyzer snapshots for the session in progress
// without submitting it.
func (e *InterviewEndpoints) IngestHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	var req IngestAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	inputs := toSampleInputs(req.AnalysisResults)
	// Aggregate up front so malformed samples are rejected before any write.
	if _, err := analysis.Aggregate(inputs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	samples := make([]models.AnalysisSample, 0, len(inputs))
	for _, in := range inputs {
		samples = append(samples, models.AnalysisSample{
			SampledAt:       in.Timestamp,
			AgeEstimate:     in.AgeEstimate,
			DominantEmotion: in.DominantEmotion,
			DominantGender:  in.DominantGender,
			FaceConfidence:  in.FaceConfidence,
			Emotions: models.EmotionScores{
				Angry:    in.Emotions["angry"],
				Disgust:  in.Emotions["disgust"],
				Fear:     in.Emotions["fear"],
				Happy:    in.Emotions["happy"],
				Neutral:  in.Emotions["neutral"],
				Sad:      in.Emotions["sad"],
				Surprise: in.Emotions["surprise"],
			},
			Region: in.Region,
		})
	}

	sessionCount, ids, err := e.store.IngestSamples(r.Context(), user.ID, samples)
	if err != nil {
		e.writeStoreError(w, err, user.ID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session_count": sessionCount,
		"analysis_ids":  ids,
	})
}

func (e *InterviewEndpoints) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessionCount, err := strconv.Atoi(chi.URLParam(r, "count"))
	if err != nil || sessionCount < 1 {
		http.Error(w, "Invalid session count", http.StatusBadRequest)
		return
	}

	view, err := e.store.GetSessionView(r.Context(), user.ID, sessionCount)
	if err != nil {
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}
	if view == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session": view,
	})
}

func (e *InterviewEndpoints) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	q, err := parseHistoryQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	views, total, err := e.store.ListSessionViews(r.Context(), user.ID, q)
	if err != nil {
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sessions": views,
		"total":    total,
		"page":     q.Page,
		"limit":    q.Limit,
	})

	slog.Info("Session history retrieved", "user_id", user.ID, "page", q.Page, "count", len(views))
}

func (e *InterviewEndpoints) StatsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	stats, err := e.store.GetUserStats(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"stats": stats,
	})
}

func (e *InterviewEndpoints) writeStoreError(w http.ResponseWriter, err error, userID string) {
	if errors.Is(err, repository.ErrConflict) {
		http.Error(w, "Submission conflicted, retry", http.StatusConflict)
		return
	}
	slog.Error("Store operation failed", "error", err, "user_id", userID)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func toAnswerInputs(payloads []QuestionAnswerPayload) []analysis.QuestionAnswerInput {
	answers := make([]analysis.QuestionAnswerInput, 0, len(payloads))
	for _, p := range payloads {
		answers = append(answers, analysis.QuestionAnswerInput{
			Question: p.Question,
			Answer:   p.Answer,
			Order:    p.Order,
			Score:    p.Score,
		})
	}
	return answers
}

func toSampleInputs(payloads []AnalysisPayload) []analysis.SampleInput {
	samples := make([]analysis.SampleInput, 0, len(payloads))
	for _, p := range payloads {
		face := p.Result[0]
		samples = append(samples, analysis.SampleInput{
			Timestamp:       p.Timestamp,
			AgeEstimate:     face.Age,
			DominantEmotion: face.DominantEmotion,
			DominantGender:  face.DominantGender,
			FaceConfidence:  face.FaceConfidence,
			Emotions:        face.Emotion,
			Region: models.FaceRegion{
				X: face.Region.X,
				Y: face.Region.Y,
				W: face.Region.W,
				H: face.Region.H,
			},
		})
	}
	return samples
}

// parseHistoryQuery reads page/limit and the optional from/to date range.
// Dates accept RFC3339 or plain YYYY-MM-DD; a bare "to" date covers the whole
// day.
func parseHistoryQuery(r *http.Request) (repository.HistoryQuery, error) {
	q := repository.HistoryQuery{Page: 1, Limit: 10}

	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return q, errors.New("invalid page")
		}
		q.Page = page
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			return q, errors.New("invalid limit")
		}
		q.Limit = limit
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := parseDate(raw, false)
		if err != nil {
			return q, errors.New("invalid from date")
		}
		q.From = &from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := parseDate(raw, true)
		if err != nil {
			return q, errors.New("invalid to date")
		}
		q.To = &to
	}
	return q, nil
}

func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
