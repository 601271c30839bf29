package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eduplatform/examd/internal/exam"
	"github.com/eduplatform/examd/internal/model"
	"github.com/eduplatform/examd/internal/selector"
	"github.com/eduplatform/examd/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store *store.Store
	exams *exam.Service
}

// New creates a new Handler.
func New(s *store.Store, svc *exam.Service) *Handler {
	return &Handler{store: s, exams: svc}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/login", h.handleLogin)
	r.Post("/api/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/api/exams/start", h.handleStartExam)
		r.Post("/api/exams/start-ai", h.handleStartAIExam)
		r.Post("/api/exams/{examID}/submit", h.handleSubmitExam)
		r.Get("/api/exams/history", h.handleHistory)
		r.Get("/api/exams/{examID}/result", h.handleResult)
		r.Get("/api/exams/{examID}", h.handleGetExam)
	})
}

type errorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string, detail map[string]any) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg, Detail: detail})
}

// writeExamError translates the exam service error taxonomy into JSON
// error responses. Unknown errors become 500s.
func writeExamError(w http.ResponseWriter, err error) {
	var (
		verr     *exam.ValidationError
		insuff   *selector.InsufficientError
		notFound *exam.AIModelNotFoundError
		mismatch *exam.AnswerCountMismatchError
		invalid  *exam.InvalidAnswerValueError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_error", verr.Msg, nil)
	case errors.As(err, &insuff):
		writeError(w, http.StatusBadRequest, "insufficient_questions", err.Error(),
			map[string]any{"available": insuff.Available, "requested": insuff.Requested})
	case errors.Is(err, exam.ErrMissingAIModel):
		writeError(w, http.StatusBadRequest, "missing_ai_model", err.Error(), nil)
	case errors.As(err, &notFound):
		writeError(w, http.StatusBadRequest, "ai_model_not_found", err.Error(),
			map[string]any{"ai_model_id": notFound.ID})
	case errors.As(err, &mismatch):
		writeError(w, http.StatusBadRequest, "answer_count_mismatch", err.Error(),
			map[string]any{"expected": mismatch.Expected, "got": mismatch.Got})
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, "invalid_answer_value", err.Error(),
			map[string]any{"index": invalid.Index, "value": invalid.Value})
	case errors.Is(err, exam.ErrExamAlreadyClosed):
		writeError(w, http.StatusBadRequest, "exam_already_closed", err.Error(), nil)
	case errors.Is(err, exam.ErrExamNotCompleted):
		writeError(w, http.StatusBadRequest, "exam_not_completed", err.Error(), nil)
	case errors.Is(err, exam.ErrExamNotFound):
		writeError(w, http.StatusNotFound, "exam_not_found", err.Error(), nil)
	default:
		slog.Error("exam operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

type startExamRequest struct {
	Specialization string `json:"specialization"`
	QuestionCount  int    `json:"question_count"`
	AIModelID      *int64 `json:"ai_model_id,omitempty"`
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	h.startExam(w, r, model.ExamTypeNormal)
}

func (h *Handler) handleStartAIExam(w http.ResponseWriter, r *http.Request) {
	h.startExam(w, r, model.ExamTypeAI)
}

func (h *Handler) startExam(w http.ResponseWriter, r *http.Request, mode model.ExamType) {
	user := model.UserFromContext(r.Context())

	var req startExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", nil)
		return
	}

	view, err := h.exams.Assemble(r.Context(), exam.StartRequest{
		UserID:         user.ID,
		Specialization: model.Specialization(req.Specialization),
		Count:          req.QuestionCount,
		Mode:           mode,
		AIModelID:      req.AIModelID,
	})
	if err != nil {
		writeExamError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type submitRequest struct {
	Answers []int `json:"answers"`
}

func (h *Handler) handleSubmitExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	examID, ok := examIDParam(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", nil)
		return
	}

	view, err := h.exams.Submit(r.Context(), examID, user.ID, req.Answers)
	if err != nil {
		writeExamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	exams, err := h.exams.History(user.ID)
	if err != nil {
		writeExamError(w, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	examID, ok := examIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.exams.Result(examID, user.ID)
	if err != nil {
		writeExamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	examID, ok := examIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.exams.Get(examID, user.ID)
	if err != nil {
		writeExamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func examIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "examID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid exam ID", nil)
		return 0, false
	}
	return id, true
}
