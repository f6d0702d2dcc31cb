// Package api is the HTTP boundary: request parsing, validation, and
// JSON serialization around the store and the orchestration service. No
// business logic lives here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"classboard/internal/classroom"
	"classboard/internal/gateway"
	"classboard/internal/store"
	"classboard/pkg/types"
)

// StatsReporter lets the health endpoint include change-feed counts
// without coupling to the feed implementation.
type StatsReporter interface {
	Stats() map[string]int
}

// Archiver is the optional transcript exporter; nil disables the
// archive endpoint.
type Archiver interface {
	ArchiveClass(ctx context.Context, t types.ClassTranscript) error
}

// Server handles the REST surface.
type Server struct {
	store    *store.Store
	svc      *classroom.Service
	feed     StatsReporter
	archiver Archiver
	poll     time.Duration
	mux      *http.ServeMux
}

// NewServer wires routes. feed and archiver may be nil.
func NewServer(st *store.Store, svc *classroom.Service, feed StatsReporter, archiver Archiver, pollInterval time.Duration) *Server {
	s := &Server{
		store:    st,
		svc:      svc,
		feed:     feed,
		archiver: archiver,
		poll:     pollInterval,
		mux:      http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /api/classes", s.createClass)
	s.mux.HandleFunc("GET /api/classes", s.joinClass)
	s.mux.HandleFunc("GET /api/classes/{id}", s.getClass)
	s.mux.HandleFunc("POST /api/classes/{id}/lesson", s.setLesson)
	s.mux.HandleFunc("GET /api/classes/{id}/progress", s.studentProgress)
	s.mux.HandleFunc("POST /api/classes/{id}/exit-summary", s.summarizeExitTickets)
	s.mux.HandleFunc("GET /api/classes/{id}/exit-summary", s.getExitSummary)
	s.mux.HandleFunc("POST /api/classes/{id}/archive", s.archiveClass)

	s.mux.HandleFunc("POST /api/questions", s.askQuestion)
	s.mux.HandleFunc("GET /api/questions", s.listQuestions)
	s.mux.HandleFunc("POST /api/questions/{id}/teacher-answer", s.teacherAnswer)
	s.mux.HandleFunc("POST /api/questions/{id}/ai-answer", s.aiAnswer)

	s.mux.HandleFunc("POST /api/released", s.releaseQuestion)
	s.mux.HandleFunc("GET /api/released", s.listReleased)
	s.mux.HandleFunc("GET /api/released/{id}", s.getReleased)
	s.mux.HandleFunc("POST /api/released/{id}/analyze", s.analyzeAnswers)
	s.mux.HandleFunc("GET /api/released/{id}/analysis", s.getAnalysis)

	s.mux.HandleFunc("POST /api/answers", s.submitAnswer)
	s.mux.HandleFunc("GET /api/answers", s.listAnswers)

	s.mux.HandleFunc("POST /api/exit-tickets", s.submitExitTicket)
	s.mux.HandleFunc("GET /api/exit-tickets", s.listExitTickets)

	s.mux.HandleFunc("POST /api/confusion", s.detectConfusion)
	s.mux.HandleFunc("POST /api/teacher-chat", s.teacherChat)
	s.mux.HandleFunc("POST /api/concerns", s.summarizeConcerns)

	s.mux.HandleFunc("GET /health", s.healthCheck)
}

// ServeHTTP applies CORS and content-type handling around the route mux.
// Clients are browser pages served from the desktop shell, so preflight
// requests arrive for every mutating call.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	s.mux.ServeHTTP(w, r)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, msg string, status int) {
	s.sendJSON(w, status, map[string]string{"error": msg})
}

// errorFor maps an error onto the response taxonomy: not-found 404,
// rejected preconditions 400, gateway failures by kind (credential 401,
// quota 429, transient 500).
func (s *Server) errorFor(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.sendError(w, notFoundMsg, http.StatusNotFound)
	case errors.Is(err, store.ErrEmptyTeacherName),
		errors.Is(err, store.ErrClassMismatch),
		errors.Is(err, classroom.ErrFallbackTooSoon),
		errors.Is(err, classroom.ErrNoAnswers),
		errors.Is(err, classroom.ErrNoExitTickets),
		errors.Is(err, classroom.ErrNoActivity):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		if ge, ok := gateway.AsError(err); ok {
			switch ge.Kind {
			case gateway.KindCredential:
				s.sendError(w, ge.Message, http.StatusUnauthorized)
			case gateway.KindQuota:
				s.sendError(w, ge.Message, http.StatusTooManyRequests)
			default:
				s.sendError(w, ge.Message, http.StatusInternalServerError)
			}
			return
		}
		log.Printf("api: internal error: %v", err)
		s.sendError(w, "Internal error", http.StatusInternalServerError)
	}
}

// POST /api/classes
func (s *Server) createClass(w http.ResponseWriter, r *http.Request) {
	var req createClassRequest
	if err := decode(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := s.store.CreateClass(req.TeacherName)
	if err != nil {
		s.errorFor(w, err, "Class not found")
		return
	}
	s.sendJSON(w, http.StatusCreated, c)
}

// GET /api/classes?code=ABC123 joins by code. Codes are normalized
// (trimmed, upper-cased) before lookup.
func (s *Server) joinClass(w http.ResponseWriter, r *http.Request) {
	code := types.NormalizeCode(r.URL.Query().Get("code"))
	if code == "" {
		s.sendError(w, "code required", http.StatusBadRequest)
		return
	}
	c, ok := s.store.GetClassByCode(code)
	if !ok {
		s.sendError(w, "Class not found", http.StatusNotFound)
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// GET /api/classes/{id}
func (s *Server) getClass(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetClass(r.PathValue("id"))
	if err != nil {
		s.errorFor(w, err, "Class not found")
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// POST /api/classes/{id}/lesson saves the plan, then blocks on
// teaching-notes generation (bounded by the notes timeout). On gateway
// failure the plan is already saved and the error reports why notes are
// missing.
func (s *Server) setLesson(w http.ResponseWriter, r *http.Request) {
	var req setLessonRequest
	if err := decode(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	lessonPlan := strings.TrimSpace(req.LessonPlan)
	if lessonPlan == "" {
		s.sendError(w, "lessonPlan required", http.StatusBadRequest)
		return
	}
	c, err := s.svc.SetLesson(r.Context(), r.PathValue("id"), lessonPlan)
	if err != nil {
		s.errorFor(w, err, "Class not found")
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// GET /api/classes/{id}/progress
func (s *Server) studentProgress(w http.ResponseWriter, r *http.Request) {
	classID := r.PathValue("id")
	if _, err := s.store.GetClass(classID); err != nil {
		s.errorFor(w, err, "Class not found")
		return
	}
	s.sendJSON(w, http.StatusOK, s.store.StudentProgress(classID))
}

// POST /api/questions records a student question; the reply carries it
// plus the AI suggestion when enrichment succeeded. The question is
// never lost to a failed suggestion: it is persisted first and the
// failure is reported alongside it.
func (s *Server) askQuestion(w http.ResponseWriter, r *http.Request) {
	var req askQuestionRequest
	if err := decode(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	name, text := strings.TrimSpace(req.StudentName), strings.TrimSpace(req.Text)
	if name == "" || text == "" {
		s.sendError(w, "studentName and text required", http.StatusBadRequest)
		return
	}

	q, suggestion, err := s.svc.AskQuestion(r.Context(), req.ClassID, name, req.StudentID, text)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendError(w, "Class not found", http.StatusNotFound)
			return
		}
		// Question saved, enrichment failed.
		resp := map[string]any{"question": q}
		if ge, ok := gateway.AsError(err); ok {
			resp["suggestionError"] = ge.Message
		} else {
			resp["suggestionError"] = "Suggestion unavailable. Try again."
		}
		s.sendJSON(w, http.StatusCreated, resp)
		return
	}
	s.sendJSON(w, http.StatusCreated, map[string]any{"question": q, "suggestion": suggestion})
}

// GET /api/questions?classId=...
func (s *Server) listQuestions(w http.ResponseWriter, r *http.Request) {
	classID := r.URL.Query().Get("classId")
	if classID == "" {
		s.sendError(w, "classId required", http.StatusBadRequest)
		return
	}
	s.sendJSON(w, http.StatusOK, s.store.GetStudentQuestionsByClass(classID))
}

// POST /api/questions/{id}/teacher-answer
func (s *Server) teacherAnswer(w http.ResponseWriter, r *http.Request) {
	var req teacherAnswerRequest
	if err := decode(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	answer := strings.TrimSpace(req.Answer)
	if answer == "" {
		s.sendError(w, "answer required", http.StatusBadRequest)
		return
	}
	q, err := s.svc.AnswerAsTeacher(r.PathValue("id"), answer)
	if err != nil {
		s.errorFor(w, err, "Question not found")
		return
	}
	s.sendJSON(w, http.StatusOK, q)
}

// POST /api/questions/{id}/ai-answer is the student-initiated AI
// fallback. Rejected until the fallback delay after the question was
// asked has passed.
func (s *Server) aiAnswer(w http.ResponseWriter, r *http.Request) {
	answer, err := s.svc.AnswerAsAI(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorFor(w, err, "Question not found")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// POST /api/released publishes an exercise. The store assigns the
// index; any index sent by a
// client is ignored.
func (s *Server) releaseQuestion(w http.ResponseWriter, r *http.Request) {
	var req releaseQuestionRequest
	if err := decode(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		s.sendError(w, "text required", http.StatusBadRequest)
		return
	}
	q, err := s.store.ReleaseQuestion(req.ClassID, text)
	if err != nil {
		s.errorFor(w, err, "Class not found")
		return
	}
	s.sendJSON(w, http.StatusCreated, q)
}

// GET /api/released?classId=...
func (s *Server) listReleased(w http.ResponseWriter, r *http.Request) {
	classID := r.URL.Query().Get("classId")
	if classID == "" {
		s.sendError(w, "classId required", http.StatusBadRequest)
		return
	}
	s.sendJSON(w, http.StatusOK, s.store.GetReleasedQuestions(classID))
}

// GET /api/released/{id}
func (s *Server) getReleased(w http.ResponseWriter, r *http.Request) {
	q, err := s.store.GetReleasedQuestion(r.PathValue("id"))
	if err != nil {
		s.errorFor(w, err, "Question not found")
		return
	}
	s.sendJSON(w, http.StatusOK, q)
}

// POST /api/released/{id}/analyze
func (s *Server) analyzeAnswers(w http.ResponseWriter, r *http.Request) {
	an, err := s.svc.AnalyzeAnswers(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorFor(w, err, "Question not found")
		return
	}
	s.sendJSON(w, http.StatusOK, an)
}

// GET /api/released/{id}/analysis
func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	an, ok := s.store.GetAnswerAnalysis(r.PathValue("id"))
	if !ok {
		s.sendError(w, "No analysis yet", http.StatusNotFound)
		return
	}
	s.sendJSON(w, http.StatusOK, an)
}

// POST /api/answers
func (s *Server) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := decode(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	name, answer := strings.TrimSpace(req.StudentName), strings.TrimSpace(req.Answer)
	if name == "" || answer == "" {
		s.sendError(w, "studentName and answer required", http.StatusBadRequest)
		return
	}
	a, err := s.store.SubmitQuestionAnswer(req.QuestionID, req.ClassID, name, req.StudentID, answer)
	if err != nil {
		s.errorFor(w, err, "Question not found")
		return
	}
	s.sendJSON(w, http.StatusCreated, a)
}

// GET /api/answers?questionId=... | ?classId=...
func (s *Server) listAnswers(w http.ResponseWriter, r *http.Request) {
	if questionID := r.URL.Query().Get("questionId"); questionID != "" {
		s.sendJSON(w, http.StatusOK, s.store.GetAnswersByQuestion(questionID))
		return
	}
	if classID := r.URL.Query().Get("classId"); classID != "" {
		s.sendJSON(w, http.StatusOK, s.store.GetAnswersByClass(classID))
		return
	}
	s.sendError(w, "questionId or classId required", http.StatusBadRequest)
}

// POST /api/exit-tickets
func (s *Server) submitExitTicket(w http.ResponseWriter, r *http.Request) {
	var req exitTicketRequest
	if err := decode(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(req.StudentName)
	if name == "" {
		s.sendError(w, "studentName required", http.StatusBadRequest)
		return
	}
	t, err := s.store.SubmitExitTicket(req.ClassID, name, req.StudentID,
		strings.TrimSpace(req.Feedback), strings.TrimSpace(req.WhatLearned))
	if err != nil {
		s.errorFor(w, err, "Class not found")
		return
	}
	s.sendJSON(w, http.StatusCreated, t)
}

// GET /api/exit-tickets?classId=...
func (s *Server) listExitTickets(w http.ResponseWriter, r *http.Request) {
	classID := r.URL.Query().Get("classId")
	if classID == "" {
		s.sendError(w, "classId required", http.StatusBadRequest)
		return
	}
	s.sendJSON(w, http.StatusOK, s.store.GetExitTicketsByClass(classID))
}

// POST /api/classes/{id}/exit-summary
func (s *Server) summarizeExitTickets(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.SummarizeExitTickets(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorFor(w, err, "Class not found")
		return
	}
	s.sendJSON(w, http.StatusOK, sum)
}

// GET /api/classes/{id}/exit-summary
func (s *Server) getExitSummary(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.store.GetExitTicketSummary(r.PathValue("id"))
	if !ok {
		s.sendError(w, "No summary yet", http.StatusNotFound)
		return
	}
	s.sendJSON(w, http.StatusOK, sum)
}

// POST /api/confusion
func (s *Server) detectConfusion(w http.ResponseWriter, r *http.Request) {
	var req confusionRequest
	if err := decode(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := s.svc.DetectConfusion(r.Context(), req.ClassID, strings.TrimSpace(req.Text))
	if err != nil {
		s.errorFor(w, err, "Class not found")
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

// POST /api/teacher-chat
func (s *Server) teacherChat(w http.ResponseWriter, r *http.Request) {
	var req teacherChatRequest
	if err := decode(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	reply, err := s.svc.TeacherChat(r.Context(), req.ClassID, strings.TrimSpace(req.Message))
	if err != nil {
		s.errorFor(w, err, "Class not found")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"response": reply})
}

// POST /api/concerns
func (s *Server) summarizeConcerns(w http.ResponseWriter, r *http.Request) {
	var req concernsRequest
	if err := decode(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	summary, err := s.svc.SummarizeConcerns(r.Context(), req.ClassID)
	if err != nil {
		s.errorFor(w, err, "Class not found")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

// POST /api/classes/{id}/archive
func (s *Server) archiveClass(w http.ResponseWriter, r *http.Request) {
	if s.archiver == nil {
		s.sendError(w, "archive not configured", http.StatusServiceUnavailable)
		return
	}
	classID := r.PathValue("id")
	transcript, err := s.store.Snapshot(classID)
	if err != nil {
		s.errorFor(w, err, "Class not found")
		return
	}
	if err := s.archiver.ArchiveClass(r.Context(), transcript); err != nil {
		log.Printf("api: archive class=%s err=%v", classID, err)
		s.sendError(w, "Failed to archive class", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{
		"classId":   classID,
		"questions": len(transcript.Questions),
		"released":  len(transcript.Released),
		"answers":   len(transcript.Answers),
		"tickets":   len(transcript.Tickets),
	})
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":                "healthy",
		"timestamp":             time.Now(),
		"store":                 s.store.Stats(),
		"poll_interval_seconds": int(s.poll.Seconds()),
		"archive_enabled":       s.archiver != nil,
	}
	if s.feed != nil {
		resp["feed"] = s.feed.Stats()
	}
	s.sendJSON(w, http.StatusOK, resp)
}
