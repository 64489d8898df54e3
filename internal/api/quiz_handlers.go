package api

import (
	"net/http"

	"github.com/kuitang/studynotes/internal/errs"
	"github.com/kuitang/studynotes/internal/obs"
	"github.com/kuitang/studynotes/internal/quiz"
)

// QuizResponse is a session plus, after a choice, whether it was correct.
type QuizResponse struct {
	quiz.Session
	Correct *bool `json:"correct,omitempty"`
}

// SelectRequest picks a highlighted token to quiz on.
type SelectRequest struct {
	Word  string `json:"word"`
	Index *int   `json:"index"`
}

// ChooseRequest answers the open question.
type ChooseRequest struct {
	Option string `json:"option"`
}

// ResetRequest restarts a quiz; Retry keeps it active.
type ResetRequest struct {
	Retry bool `json:"retry"`
}

// QuizState handles GET /owners/{id}/quiz
func (h *Handler) QuizState(w http.ResponseWriter, r *http.Request) {
	sess, err := h.quiz.State(r.Context(), r.PathValue("id"))
	h.writeQuiz(w, r, sess, nil, err)
}

// QuizEnable handles POST /owners/{id}/quiz/enable
func (h *Handler) QuizEnable(w http.ResponseWriter, r *http.Request) {
	ctx := obs.WithOwner(r.Context(), r.PathValue("id"))
	sess, err := h.quiz.Enable(ctx, r.PathValue("id"))
	h.writeQuiz(w, r, sess, nil, err)
}

// QuizSelect handles POST /owners/{id}/quiz/select
func (h *Handler) QuizSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Index == nil {
		writeError(w, r, errs.New(errs.InvalidArgument, "index is required"))
		return
	}
	ctx := obs.WithOwner(r.Context(), r.PathValue("id"))
	sess, err := h.quiz.Select(ctx, r.PathValue("id"), req.Word, *req.Index)
	h.writeQuiz(w, r, sess, nil, err)
}

// QuizChoose handles POST /owners/{id}/quiz/choose
func (h *Handler) QuizChoose(w http.ResponseWriter, r *http.Request) {
	var req ChooseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := obs.WithOwner(r.Context(), r.PathValue("id"))
	sess, correct, err := h.quiz.Choose(ctx, r.PathValue("id"), req.Option)
	h.writeQuiz(w, r, sess, &correct, err)
}

// QuizReset handles POST /owners/{id}/quiz/reset
func (h *Handler) QuizReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := obs.WithOwner(r.Context(), r.PathValue("id"))
	sess, err := h.quiz.Reset(ctx, r.PathValue("id"), req.Retry)
	h.writeQuiz(w, r, sess, nil, err)
}

// QuizDisable handles POST /owners/{id}/quiz/disable
func (h *Handler) QuizDisable(w http.ResponseWriter, r *http.Request) {
	ctx := obs.WithOwner(r.Context(), r.PathValue("id"))
	sess, err := h.quiz.Disable(ctx, r.PathValue("id"))
	h.writeQuiz(w, r, sess, nil, err)
}

func (h *Handler) writeQuiz(w http.ResponseWriter, r *http.Request, sess quiz.Session, correct *bool, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, QuizResponse{Session: sess, Correct: correct})
}
