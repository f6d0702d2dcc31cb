package types

import (
	"encoding/json"
	"time"
)

// Participant roles within a class session.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Sources that can resolve a student question. Exactly one source is
// recorded per question; whichever write lands last wins.
const (
	ReplySourceTeacher = "teacher"
	ReplySourceAI      = "ai"
)

// ClassSession is one teacher's ongoing lesson instance. Students join
// with the 6-character code; the id never changes after creation.
// CurriculumContext is derived from LessonPlan plus TeachingNotes and is
// only ever written through UpdateTeachingNotes, never hand-edited.
type ClassSession struct {
	ID                string    `json:"id"`
	Code              string    `json:"code"`
	TeacherName       string    `json:"teacherName"`
	LessonPlan        string    `json:"lessonPlan"`
	TeachingNotes     string    `json:"teachingNotes"`
	CurriculumContext string    `json:"curriculumContext"`
	CreatedAt         time.Time `json:"createdAt"`
}

// QuestionReply is the answer recorded against a student question, tagged
// with who produced it. A single variant (rather than two independent
// optional strings) makes "exactly one answer source" structural: a
// question is either unanswered (nil) or answered by one source.
type QuestionReply struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// StudentQuestion is a question a student asked during class.
// Resolved is monotonic: once true it never reverts, regardless of how
// teacher and AI answer writes interleave.
type StudentQuestion struct {
	ID           string         `json:"id"`
	ClassID      string         `json:"classId"`
	StudentName  string         `json:"studentName"`
	StudentID    string         `json:"studentId"`
	Text         string         `json:"text"`
	AISuggestion string         `json:"aiSuggestion,omitempty"`
	Reply        *QuestionReply `json:"-"`
	CreatedAt    time.Time      `json:"createdAt"`
	Resolved     bool           `json:"resolved"`
}

// AnsweredBy reports whether the question was resolved by the given source.
func (q StudentQuestion) AnsweredBy(source string) bool {
	return q.Reply != nil && q.Reply.Source == source
}

// MarshalJSON keeps the wire shape clients already consume: the reply
// variant is flattened into the optional teacherAnswered / aiAnswered
// string fields.
func (q StudentQuestion) MarshalJSON() ([]byte, error) {
	type plain StudentQuestion
	out := struct {
		plain
		TeacherAnswered string `json:"teacherAnswered,omitempty"`
		AIAnswered      string `json:"aiAnswered,omitempty"`
	}{plain: plain(q)}
	if q.Reply != nil {
		switch q.Reply.Source {
		case ReplySourceTeacher:
			out.TeacherAnswered = q.Reply.Text
		case ReplySourceAI:
			out.AIAnswered = q.Reply.Text
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON, rebuilding the reply
// variant from the flattened answer fields.
func (q *StudentQuestion) UnmarshalJSON(data []byte) error {
	type plain StudentQuestion
	var in struct {
		plain
		TeacherAnswered string `json:"teacherAnswered"`
		AIAnswered      string `json:"aiAnswered"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*q = StudentQuestion(in.plain)
	switch {
	case in.TeacherAnswered != "":
		q.Reply = &QuestionReply{Source: ReplySourceTeacher, Text: in.TeacherAnswered}
	case in.AIAnswered != "":
		q.Reply = &QuestionReply{Source: ReplySourceAI, Text: in.AIAnswered}
	}
	return nil
}

// ReleasedQuestion is a teacher-authored exercise made visible to all
// students in a class. Immutable after creation; Index is assigned by the
// store as a strictly sequential per-class counter.
type ReleasedQuestion struct {
	ID         string    `json:"id"`
	ClassID    string    `json:"classId"`
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	ReleasedAt time.Time `json:"releasedAt"`
}

// QuestionAnswer is one student submission for a released question.
// A student may submit multiple answers to the same question; that is
// documented behavior, not a bug.
type QuestionAnswer struct {
	ID          string    `json:"id"`
	QuestionID  string    `json:"questionId"`
	ClassID     string    `json:"classId"`
	StudentName string    `json:"studentName"`
	StudentID   string    `json:"studentId"`
	Answer      string    `json:"answer"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// AnswerAnalysis is the AI roll-up of all answers to one released
// question, keyed 1:1 by question id. Re-analysis overwrites the prior
// record wholesale.
type AnswerAnalysis struct {
	QuestionID   string    `json:"questionId"`
	QuestionText string    `json:"questionText"`
	Summary      string    `json:"summary"`
	AnalyzedAt   time.Time `json:"analyzedAt"`
}

// ExitTicket is end-of-class feedback from one student. No uniqueness
// constraint per student.
type ExitTicket struct {
	ID          string    `json:"id"`
	ClassID     string    `json:"classId"`
	StudentName string    `json:"studentName"`
	StudentID   string    `json:"studentId"`
	Feedback    string    `json:"feedback"`
	WhatLearned string    `json:"whatLearned"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ExitTicketSummary is the AI roll-up of a class's exit tickets, keyed
// 1:1 by class id. Re-summarization overwrites.
type ExitTicketSummary struct {
	ClassID                  string    `json:"classId"`
	Summary                  string    `json:"summary"`
	SuggestionsForNextLesson string    `json:"suggestionsForNextLesson"`
	SummarizedAt             time.Time `json:"summarizedAt"`
}

// StudentProgress aggregates one student's activity within a class.
// Identities are discovered from existing records, not a roster, so a
// student with zero activity never appears.
type StudentProgress struct {
	StudentID        string            `json:"studentId"`
	StudentName      string            `json:"studentName"`
	QuestionsAsked   int               `json:"questionsAsked"`
	AnswersSubmitted int               `json:"answersSubmitted"`
	Questions        []StudentQuestion `json:"questions"`
	Answers          []QuestionAnswer  `json:"answers"`
}

// ClassTranscript is a point-in-time snapshot of everything recorded for
// one class, used by the archive exporter.
type ClassTranscript struct {
	Class     ClassSession       `json:"class"`
	Questions []StudentQuestion  `json:"questions"`
	Released  []ReleasedQuestion `json:"released"`
	Answers   []QuestionAnswer   `json:"answers"`
	Analyses  []AnswerAnalysis   `json:"analyses"`
	Tickets   []ExitTicket       `json:"tickets"`
	Summary   *ExitTicketSummary `json:"summary,omitempty"`
}
