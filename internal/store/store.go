// Package store holds the authoritative in-memory state of every live
// class session: questions, released exercises, answers, analyses, and
// exit tickets. One store instance is shared by every request handler and
// background enrichment call in the process.
//
// Concurrency model: a single RWMutex guards all keyed collections, so a
// multi-field mutation (answer text plus the resolved flag) commits
// atomically with respect to readers. Reads return copies, never pointers
// into the store, so a snapshot handed to a caller can never be observed
// mid-mutation. Store operations never perform external I/O; enrichment
// calls happen outside and write back through the same operations.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"classboard/pkg/types"
)

// Store is the process-wide session repository. The zero value is not
// usable; construct with New and inject the instance into handlers.
type Store struct {
	mu sync.RWMutex

	classes     map[string]*types.ClassSession
	codeToClass map[string]string // join code -> class id
	questions   map[string]*types.StudentQuestion
	released    map[string]*types.ReleasedQuestion
	answers     map[string]*types.QuestionAnswer
	analyses    map[string]*types.AnswerAnalysis // keyed by released-question id
	tickets     map[string]*types.ExitTicket
	summaries   map[string]*types.ExitTicketSummary // keyed by class id

	// releaseCounts assigns released-question indices as an atomic
	// per-class counter under the write lock, so concurrent releases can
	// never observe a stale count and collide.
	releaseCounts map[string]int

	listener func(types.ChangeEvent)
	now      func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		classes:       make(map[string]*types.ClassSession),
		codeToClass:   make(map[string]string),
		questions:     make(map[string]*types.StudentQuestion),
		released:      make(map[string]*types.ReleasedQuestion),
		answers:       make(map[string]*types.QuestionAnswer),
		analyses:      make(map[string]*types.AnswerAnalysis),
		tickets:       make(map[string]*types.ExitTicket),
		summaries:     make(map[string]*types.ExitTicketSummary),
		releaseCounts: make(map[string]int),
		now:           time.Now,
	}
}

// OnChange registers a listener invoked after each mutation commits. The
// listener runs outside the store lock and must not call back into
// mutating operations synchronously. Set once during wiring, before the
// store is shared across goroutines.
func (s *Store) OnChange(fn func(types.ChangeEvent)) {
	s.listener = fn
}

func (s *Store) notify(entity, action, id, classID string) {
	if s.listener == nil {
		return
	}
	s.listener(types.ChangeEvent{
		Entity:  entity,
		Action:  action,
		ID:      id,
		ClassID: classID,
		At:      s.now(),
	})
}

// CreateClass creates a class session with a fresh id and a unique
// 6-character join code.
func (s *Store) CreateClass(teacherName string) (types.ClassSession, error) {
	teacherName = strings.TrimSpace(teacherName)
	if teacherName == "" {
		return types.ClassSession{}, ErrEmptyTeacherName
	}

	s.mu.Lock()
	c := &types.ClassSession{
		ID:          newID(),
		Code:        s.newClassCode(),
		TeacherName: teacherName,
		CreatedAt:   s.now(),
	}
	s.classes[c.ID] = c
	s.codeToClass[c.Code] = c.ID
	out := *c
	s.mu.Unlock()

	s.notify(types.EntityClass, types.ActionCreated, out.ID, out.ID)
	return out, nil
}

// GetClass returns the class with the given id.
func (s *Store) GetClass(id string) (types.ClassSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.classes[id]
	if !ok {
		return types.ClassSession{}, ErrNotFound
	}
	return *c, nil
}

// GetClassByCode resolves a user-entered join code, case-insensitively
// and ignoring surrounding whitespace. Absence is an expected case (a
// mistyped code), so it reports ok=false rather than an error.
func (s *Store) GetClassByCode(code string) (types.ClassSession, bool) {
	normalized := types.NormalizeCode(code)
	if normalized == "" {
		return types.ClassSession{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.codeToClass[normalized]
	if !ok {
		return types.ClassSession{}, false
	}
	c, ok := s.classes[id]
	if !ok {
		return types.ClassSession{}, false
	}
	return *c, true
}

// ListClasses returns every live class, oldest first.
func (s *Store) ListClasses() []types.ClassSession {
	s.mu.RLock()
	out := make([]types.ClassSession, 0, len(s.classes))
	for _, c := range s.classes {
		out = append(out, *c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// UpdateLessonPlan replaces the class's lesson plan.
func (s *Store) UpdateLessonPlan(classID, lessonPlan string) (types.ClassSession, error) {
	s.mu.Lock()
	c, ok := s.classes[classID]
	if !ok {
		s.mu.Unlock()
		return types.ClassSession{}, ErrNotFound
	}
	c.LessonPlan = lessonPlan
	out := *c
	s.mu.Unlock()

	s.notify(types.EntityClass, types.ActionUpdated, classID, classID)
	return out, nil
}

// UpdateTeachingNotes stores generated teaching notes together with the
// derived curriculum context. The two fields always change together so a
// reader never sees notes without their matching context.
func (s *Store) UpdateTeachingNotes(classID, teachingNotes, curriculumContext string) (types.ClassSession, error) {
	s.mu.Lock()
	c, ok := s.classes[classID]
	if !ok {
		s.mu.Unlock()
		return types.ClassSession{}, ErrNotFound
	}
	c.TeachingNotes = teachingNotes
	c.CurriculumContext = curriculumContext
	out := *c
	s.mu.Unlock()

	s.notify(types.EntityClass, types.ActionUpdated, classID, classID)
	return out, nil
}

// AddStudentQuestion records a new, unresolved student question. The
// class must exist at creation time.
func (s *Store) AddStudentQuestion(classID, studentName, studentID, text string) (types.StudentQuestion, error) {
	s.mu.Lock()
	if _, ok := s.classes[classID]; !ok {
		s.mu.Unlock()
		return types.StudentQuestion{}, ErrNotFound
	}
	q := &types.StudentQuestion{
		ID:          newID(),
		ClassID:     classID,
		StudentName: studentName,
		StudentID:   studentID,
		Text:        text,
		CreatedAt:   s.now(),
	}
	s.questions[q.ID] = q
	out := *q
	s.mu.Unlock()

	s.notify(types.EntityQuestion, types.ActionCreated, out.ID, classID)
	return out, nil
}

// GetStudentQuestion returns one student question by id.
func (s *Store) GetStudentQuestion(questionID string) (types.StudentQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.questions[questionID]
	if !ok {
		return types.StudentQuestion{}, ErrNotFound
	}
	return *q, nil
}

// GetStudentQuestionsByClass lists a class's questions in creation order.
// An unknown class yields an empty list, not an error: list reads are the
// polling surface and absence of data is not a failure.
func (s *Store) GetStudentQuestionsByClass(classID string) []types.StudentQuestion {
	s.mu.RLock()
	out := make([]types.StudentQuestion, 0, 8)
	for _, q := range s.questions {
		if q.ClassID == classID {
			out = append(out, *q)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SetQuestionSuggestion attaches the AI suggestion shown to the teacher.
// Last write wins; the suggestion never affects resolution.
func (s *Store) SetQuestionSuggestion(questionID, suggestion string) error {
	s.mu.Lock()
	q, ok := s.questions[questionID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	q.AISuggestion = suggestion
	classID := q.ClassID
	s.mu.Unlock()

	s.notify(types.EntityQuestion, types.ActionUpdated, questionID, classID)
	return nil
}

// SetTeacherAnswer records the teacher's answer and resolves the
// question. May race with SetAIAnswer on the same question by design:
// the reply is last-write-wins and resolved stays true either way.
func (s *Store) SetTeacherAnswer(questionID, answer string) (types.StudentQuestion, error) {
	return s.setReply(questionID, types.ReplySourceTeacher, answer)
}

// SetAIAnswer records an AI-generated answer and resolves the question.
func (s *Store) SetAIAnswer(questionID, answer string) (types.StudentQuestion, error) {
	return s.setReply(questionID, types.ReplySourceAI, answer)
}

func (s *Store) setReply(questionID, source, text string) (types.StudentQuestion, error) {
	s.mu.Lock()
	q, ok := s.questions[questionID]
	if !ok {
		s.mu.Unlock()
		return types.StudentQuestion{}, ErrNotFound
	}
	// A fresh reply value on every write keeps copies handed out earlier
	// immutable; resolved flips together with the reply under the lock.
	q.Reply = &types.QuestionReply{Source: source, Text: text}
	q.Resolved = true
	out := *q
	s.mu.Unlock()

	s.notify(types.EntityQuestion, types.ActionUpdated, questionID, out.ClassID)
	return out, nil
}

// ReleaseQuestion publishes an exercise to all students in the class.
// The index is assigned here, from a per-class counter incremented under
// the write lock, so concurrent releases get distinct sequential indices.
func (s *Store) ReleaseQuestion(classID, text string) (types.ReleasedQuestion, error) {
	s.mu.Lock()
	if _, ok := s.classes[classID]; !ok {
		s.mu.Unlock()
		return types.ReleasedQuestion{}, ErrNotFound
	}
	q := &types.ReleasedQuestion{
		ID:         newID(),
		ClassID:    classID,
		Index:      s.releaseCounts[classID],
		Text:       text,
		ReleasedAt: s.now(),
	}
	s.releaseCounts[classID]++
	s.released[q.ID] = q
	out := *q
	s.mu.Unlock()

	s.notify(types.EntityReleased, types.ActionCreated, out.ID, classID)
	return out, nil
}

// GetReleasedQuestion returns one released question by id.
func (s *Store) GetReleasedQuestion(id string) (types.ReleasedQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.released[id]
	if !ok {
		return types.ReleasedQuestion{}, ErrNotFound
	}
	return *q, nil
}

// GetReleasedQuestions lists a class's released questions by ascending
// index.
func (s *Store) GetReleasedQuestions(classID string) []types.ReleasedQuestion {
	s.mu.RLock()
	out := make([]types.ReleasedQuestion, 0, 8)
	for _, q := range s.released {
		if q.ClassID == classID {
			out = append(out, *q)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// SubmitQuestionAnswer appends a student's answer to a released question.
// There is no duplicate suppression: a student may submit any number of
// answers to the same question.
func (s *Store) SubmitQuestionAnswer(questionID, classID, studentName, studentID, answer string) (types.QuestionAnswer, error) {
	s.mu.Lock()
	q, ok := s.released[questionID]
	if !ok {
		s.mu.Unlock()
		return types.QuestionAnswer{}, ErrNotFound
	}
	if q.ClassID != classID {
		s.mu.Unlock()
		return types.QuestionAnswer{}, ErrClassMismatch
	}
	a := &types.QuestionAnswer{
		ID:          newID(),
		QuestionID:  questionID,
		ClassID:     classID,
		StudentName: studentName,
		StudentID:   studentID,
		Answer:      answer,
		SubmittedAt: s.now(),
	}
	s.answers[a.ID] = a
	out := *a
	s.mu.Unlock()

	s.notify(types.EntityAnswer, types.ActionCreated, out.ID, classID)
	return out, nil
}

// GetAnswersByQuestion lists answers to one released question in
// submission order.
func (s *Store) GetAnswersByQuestion(questionID string) []types.QuestionAnswer {
	return s.listAnswers(func(a *types.QuestionAnswer) bool { return a.QuestionID == questionID })
}

// GetAnswersByClass lists every answer submitted in a class in
// submission order.
func (s *Store) GetAnswersByClass(classID string) []types.QuestionAnswer {
	return s.listAnswers(func(a *types.QuestionAnswer) bool { return a.ClassID == classID })
}

func (s *Store) listAnswers(match func(*types.QuestionAnswer) bool) []types.QuestionAnswer {
	s.mu.RLock()
	out := make([]types.QuestionAnswer, 0, 8)
	for _, a := range s.answers {
		if match(a) {
			out = append(out, *a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SetAnswerAnalysis stores the AI analysis for a released question,
// replacing any prior analysis wholesale. Concurrent analyses of the
// same question both land; the last write wins.
func (s *Store) SetAnswerAnalysis(questionID, questionText, summary string) (types.AnswerAnalysis, error) {
	s.mu.Lock()
	q, ok := s.released[questionID]
	if !ok {
		s.mu.Unlock()
		return types.AnswerAnalysis{}, ErrNotFound
	}
	an := &types.AnswerAnalysis{
		QuestionID:   questionID,
		QuestionText: questionText,
		Summary:      summary,
		AnalyzedAt:   s.now(),
	}
	s.analyses[questionID] = an
	classID := q.ClassID
	out := *an
	s.mu.Unlock()

	s.notify(types.EntityAnalysis, types.ActionUpdated, questionID, classID)
	return out, nil
}

// GetAnswerAnalysis returns the latest analysis for a released question.
// ok=false until an analysis has been set.
func (s *Store) GetAnswerAnalysis(questionID string) (types.AnswerAnalysis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	an, ok := s.analyses[questionID]
	if !ok {
		return types.AnswerAnalysis{}, false
	}
	return *an, true
}

// SubmitExitTicket records a student's end-of-class feedback.
func (s *Store) SubmitExitTicket(classID, studentName, studentID, feedback, whatLearned string) (types.ExitTicket, error) {
	s.mu.Lock()
	if _, ok := s.classes[classID]; !ok {
		s.mu.Unlock()
		return types.ExitTicket{}, ErrNotFound
	}
	t := &types.ExitTicket{
		ID:          newID(),
		ClassID:     classID,
		StudentName: studentName,
		StudentID:   studentID,
		Feedback:    feedback,
		WhatLearned: whatLearned,
		SubmittedAt: s.now(),
	}
	s.tickets[t.ID] = t
	out := *t
	s.mu.Unlock()

	s.notify(types.EntityTicket, types.ActionCreated, out.ID, classID)
	return out, nil
}

// GetExitTicketsByClass lists a class's exit tickets in submission order.
func (s *Store) GetExitTicketsByClass(classID string) []types.ExitTicket {
	s.mu.RLock()
	out := make([]types.ExitTicket, 0, 8)
	for _, t := range s.tickets {
		if t.ClassID == classID {
			out = append(out, *t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SetExitTicketSummary stores the class's exit-ticket summary, replacing
// any prior one.
func (s *Store) SetExitTicketSummary(classID, summary, suggestionsForNextLesson string) (types.ExitTicketSummary, error) {
	s.mu.Lock()
	if _, ok := s.classes[classID]; !ok {
		s.mu.Unlock()
		return types.ExitTicketSummary{}, ErrNotFound
	}
	sum := &types.ExitTicketSummary{
		ClassID:                  classID,
		Summary:                  summary,
		SuggestionsForNextLesson: suggestionsForNextLesson,
		SummarizedAt:             s.now(),
	}
	s.summaries[classID] = sum
	out := *sum
	s.mu.Unlock()

	s.notify(types.EntitySummary, types.ActionUpdated, classID, classID)
	return out, nil
}

// GetExitTicketSummary returns the latest exit-ticket summary for a
// class. ok=false until one has been set.
func (s *Store) GetExitTicketSummary(classID string) (types.ExitTicketSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, ok := s.summaries[classID]
	if !ok {
		return types.ExitTicketSummary{}, false
	}
	return *sum, true
}

// StudentProgress aggregates questions asked and answers submitted per
// distinct student id in a class. Entries are ordered by each student's
// first recorded activity so the roll-up is stable across polls.
func (s *Store) StudentProgress(classID string) []types.StudentProgress {
	questions := s.GetStudentQuestionsByClass(classID)
	answers := s.GetAnswersByClass(classID)

	byStudent := make(map[string]*types.StudentProgress)
	first := make(map[string]time.Time)

	seen := func(studentID, studentName string, at time.Time) *types.StudentProgress {
		p, ok := byStudent[studentID]
		if !ok {
			p = &types.StudentProgress{StudentID: studentID, StudentName: studentName}
			byStudent[studentID] = p
			first[studentID] = at
		}
		if at.Before(first[studentID]) {
			first[studentID] = at
		}
		return p
	}

	for _, q := range questions {
		p := seen(q.StudentID, q.StudentName, q.CreatedAt)
		p.Questions = append(p.Questions, q)
	}
	for _, a := range answers {
		p := seen(a.StudentID, a.StudentName, a.SubmittedAt)
		p.Answers = append(p.Answers, a)
	}

	out := make([]types.StudentProgress, 0, len(byStudent))
	for _, p := range byStudent {
		p.QuestionsAsked = len(p.Questions)
		p.AnswersSubmitted = len(p.Answers)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		fi, fj := first[out[i].StudentID], first[out[j].StudentID]
		if !fi.Equal(fj) {
			return fi.Before(fj)
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out
}

// Snapshot captures everything recorded for one class, for the archive
// exporter. The snapshot is built from the same copy-out reads as the
// polling endpoints, so it is internally consistent per entity but not a
// cross-entity transaction; none is needed for an export.
func (s *Store) Snapshot(classID string) (types.ClassTranscript, error) {
	class, err := s.GetClass(classID)
	if err != nil {
		return types.ClassTranscript{}, err
	}

	t := types.ClassTranscript{
		Class:     class,
		Questions: s.GetStudentQuestionsByClass(classID),
		Released:  s.GetReleasedQuestions(classID),
		Answers:   s.GetAnswersByClass(classID),
		Tickets:   s.GetExitTicketsByClass(classID),
	}
	for _, rq := range t.Released {
		if an, ok := s.GetAnswerAnalysis(rq.ID); ok {
			t.Analyses = append(t.Analyses, an)
		}
	}
	if sum, ok := s.GetExitTicketSummary(classID); ok {
		t.Summary = &sum
	}
	return t, nil
}

// Stats reports entity counts for the health endpoint.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]int{
		"classes":            len(s.classes),
		"student_questions":  len(s.questions),
		"released_questions": len(s.released),
		"question_answers":   len(s.answers),
		"exit_tickets":       len(s.tickets),
	}
}
