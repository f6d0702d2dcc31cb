// Package classroom sequences store mutations with AI enrichment: every
// flow here is "mutate, call the gateway, write the result back". The
// store stays free of external I/O, and an enrichment failure never rolls
// back or discards the entity that was already persisted.
package classroom

import (
	"context"
	"fmt"
	"log"
	"time"

	"classboard/internal/gateway"
	"classboard/internal/store"
	"classboard/pkg/types"
)

// Generator is the capability the service needs from the enrichment
// gateway. *gateway.Client implements it; tests substitute mocks.
type Generator interface {
	GenerateTeachingNotes(ctx context.Context, lessonPlan string) (string, error)
	SuggestAnswer(ctx context.Context, question, curriculumContext string) (string, error)
	AnswerStudent(ctx context.Context, question, curriculumContext string) (string, error)
	TeacherChat(ctx context.Context, message, curriculumContext string) (string, error)
	AnalyzeAnswers(ctx context.Context, questionText string, answers []gateway.StudentAnswer) (string, error)
	SummarizeExitTickets(ctx context.Context, feedback []gateway.StudentFeedback) (string, error)
	SuggestNextLesson(ctx context.Context, summary string) (string, error)
	SummarizeConcerns(ctx context.Context, questions []gateway.ConcernQuestion, tickets []gateway.ConcernTicket) (string, error)
	DetectConfusion(ctx context.Context, text, curriculumContext string) (gateway.ConfusionResult, error)
}

// Config bounds the service's enrichment behavior.
type Config struct {
	// NotesTimeout caps teaching-notes generation, the one flow that
	// blocks the caller's page until the gateway responds.
	NotesTimeout time.Duration
	// AIFallbackDelay is how long after a question is asked before a
	// student may request an AI answer to it.
	AIFallbackDelay time.Duration
}

// Service coordinates the store and the enrichment gateway.
type Service struct {
	store *store.Store
	gen   Generator
	cfg   Config
	now   func() time.Time
}

// NewService wires the orchestration service.
func NewService(st *store.Store, gen Generator, cfg Config) *Service {
	if cfg.NotesTimeout <= 0 {
		cfg.NotesTimeout = 90 * time.Second
	}
	if cfg.AIFallbackDelay <= 0 {
		cfg.AIFallbackDelay = 60 * time.Second
	}
	return &Service{store: st, gen: gen, cfg: cfg, now: time.Now}
}

// SetLesson saves the lesson plan and generates teaching notes from it,
// deriving the curriculum context handed to every later enrichment call.
// The plan is persisted before the gateway call: if generation fails or
// times out, the plan survives and the notes stay absent. A late gateway
// response after the caller gave up simply never lands, which the
// idempotent overwrite semantics make harmless.
func (s *Service) SetLesson(ctx context.Context, classID, lessonPlan string) (types.ClassSession, error) {
	c, err := s.store.UpdateLessonPlan(classID, lessonPlan)
	if err != nil {
		return types.ClassSession{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.NotesTimeout)
	defer cancel()

	notes, err := s.gen.GenerateTeachingNotes(ctx, lessonPlan)
	if err != nil {
		return c, fmt.Errorf("generate teaching notes: %w", err)
	}

	curriculumContext := fmt.Sprintf("%s\n\nTeaching notes:\n%s", lessonPlan, notes)
	return s.store.UpdateTeachingNotes(classID, notes, curriculumContext)
}

// AskQuestion records a student question, then asks the gateway for a
// suggested answer the teacher can use. The question is returned even
// when the suggestion call fails; the error is reported alongside so the
// boundary can surface it without discarding the student's text.
func (s *Service) AskQuestion(ctx context.Context, classID, studentName, studentID, text string) (types.StudentQuestion, string, error) {
	c, err := s.store.GetClass(classID)
	if err != nil {
		return types.StudentQuestion{}, "", err
	}
	q, err := s.store.AddStudentQuestion(classID, studentName, studentID, text)
	if err != nil {
		return types.StudentQuestion{}, "", err
	}

	suggestion, err := s.gen.SuggestAnswer(ctx, text, c.CurriculumContext)
	if err != nil {
		log.Printf("suggestion failed: question=%s err=%v", q.ID, err)
		return q, "", err
	}
	if err := s.store.SetQuestionSuggestion(q.ID, suggestion); err != nil {
		return q, suggestion, err
	}
	q, err = s.store.GetStudentQuestion(q.ID)
	return q, suggestion, err
}

// AnswerAsTeacher records the teacher's answer and resolves the question.
func (s *Service) AnswerAsTeacher(questionID, answer string) (types.StudentQuestion, error) {
	return s.store.SetTeacherAnswer(questionID, answer)
}

// AnswerAsAI generates an AI fallback answer for an unanswered question.
// Requests arriving before the fallback delay has elapsed (measured from
// the question's CreatedAt) are rejected; the teacher may still be
// typing, and both answers landing is an accepted race, not an error.
func (s *Service) AnswerAsAI(ctx context.Context, questionID string) (string, error) {
	q, err := s.store.GetStudentQuestion(questionID)
	if err != nil {
		return "", err
	}
	if s.now().Sub(q.CreatedAt) < s.cfg.AIFallbackDelay {
		return "", ErrFallbackTooSoon
	}
	c, err := s.store.GetClass(q.ClassID)
	if err != nil {
		return "", err
	}

	answer, err := s.gen.AnswerStudent(ctx, q.Text, c.CurriculumContext)
	if err != nil {
		return "", err
	}
	if _, err := s.store.SetAIAnswer(questionID, answer); err != nil {
		return "", err
	}
	return answer, nil
}

// AnalyzeAnswers summarizes all submitted answers to a released question
// and stores the analysis, overwriting any prior one. Two concurrent
// analyses both run and both write; last write wins.
func (s *Service) AnalyzeAnswers(ctx context.Context, questionID string) (types.AnswerAnalysis, error) {
	q, err := s.store.GetReleasedQuestion(questionID)
	if err != nil {
		return types.AnswerAnalysis{}, err
	}
	answers := s.store.GetAnswersByQuestion(questionID)
	if len(answers) == 0 {
		return types.AnswerAnalysis{}, ErrNoAnswers
	}

	in := make([]gateway.StudentAnswer, 0, len(answers))
	for _, a := range answers {
		in = append(in, gateway.StudentAnswer{StudentName: a.StudentName, Answer: a.Answer})
	}
	summary, err := s.gen.AnalyzeAnswers(ctx, q.Text, in)
	if err != nil {
		return types.AnswerAnalysis{}, err
	}
	return s.store.SetAnswerAnalysis(questionID, q.Text, summary)
}

// SummarizeExitTickets rolls up a class's exit tickets and derives
// suggestions for the next lesson, storing both.
func (s *Service) SummarizeExitTickets(ctx context.Context, classID string) (types.ExitTicketSummary, error) {
	if _, err := s.store.GetClass(classID); err != nil {
		return types.ExitTicketSummary{}, err
	}
	tickets := s.store.GetExitTicketsByClass(classID)
	if len(tickets) == 0 {
		return types.ExitTicketSummary{}, ErrNoExitTickets
	}

	feedback := make([]gateway.StudentFeedback, 0, len(tickets))
	for _, t := range tickets {
		feedback = append(feedback, gateway.StudentFeedback{
			StudentName: t.StudentName,
			Feedback:    fmt.Sprintf("%s\nWhat I learned: %s", t.Feedback, t.WhatLearned),
		})
	}
	summary, err := s.gen.SummarizeExitTickets(ctx, feedback)
	if err != nil {
		return types.ExitTicketSummary{}, err
	}
	suggestions, err := s.gen.SuggestNextLesson(ctx, summary)
	if err != nil {
		return types.ExitTicketSummary{}, err
	}
	return s.store.SetExitTicketSummary(classID, summary, suggestions)
}

// TeacherChat answers a teacher's clarification request against the
// class's curriculum context. Nothing is stored.
func (s *Service) TeacherChat(ctx context.Context, classID, message string) (string, error) {
	c, err := s.store.GetClass(classID)
	if err != nil {
		return "", err
	}
	return s.gen.TeacherChat(ctx, message, c.CurriculumContext)
}

// SummarizeConcerns builds the end-of-class "kid concerns" brief from
// every question asked and every exit ticket submitted. Nothing is
// stored; the teacher requests it when wrapping up.
func (s *Service) SummarizeConcerns(ctx context.Context, classID string) (string, error) {
	if _, err := s.store.GetClass(classID); err != nil {
		return "", err
	}
	questions := s.store.GetStudentQuestionsByClass(classID)
	tickets := s.store.GetExitTicketsByClass(classID)
	if len(questions) == 0 && len(tickets) == 0 {
		return "", ErrNoActivity
	}

	qs := make([]gateway.ConcernQuestion, 0, len(questions))
	for _, q := range questions {
		qs = append(qs, gateway.ConcernQuestion{StudentName: q.StudentName, Text: q.Text})
	}
	ts := make([]gateway.ConcernTicket, 0, len(tickets))
	for _, t := range tickets {
		ts = append(ts, gateway.ConcernTicket{StudentName: t.StudentName, Feedback: t.Feedback, WhatLearned: t.WhatLearned})
	}
	return s.gen.SummarizeConcerns(ctx, qs, ts)
}

// DetectConfusion checks student input for signs of confusion against
// the class's curriculum context, falling back to the lesson plan when
// no notes have been generated yet.
func (s *Service) DetectConfusion(ctx context.Context, classID, text string) (gateway.ConfusionResult, error) {
	c, err := s.store.GetClass(classID)
	if err != nil {
		return gateway.ConfusionResult{SuggestedRephrases: []string{}}, err
	}
	curriculumContext := c.CurriculumContext
	if curriculumContext == "" {
		curriculumContext = c.LessonPlan
	}
	return s.gen.DetectConfusion(ctx, text, curriculumContext)
}
