package archive

import (
	"database/sql"

	"classboard/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS classes (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL,
	teacher_name TEXT NOT NULL,
	lesson_plan TEXT NOT NULL DEFAULT '',
	teaching_notes TEXT NOT NULL DEFAULT '',
	curriculum_context TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS student_questions (
	id TEXT PRIMARY KEY,
	class_id TEXT NOT NULL REFERENCES classes(id),
	student_name TEXT NOT NULL,
	student_id TEXT NOT NULL,
	text TEXT NOT NULL,
	ai_suggestion TEXT NOT NULL DEFAULT '',
	reply_source TEXT NOT NULL DEFAULT '',
	reply_text TEXT NOT NULL DEFAULT '',
	resolved INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS released_questions (
	id TEXT PRIMARY KEY,
	class_id TEXT NOT NULL REFERENCES classes(id),
	question_index INTEGER NOT NULL,
	text TEXT NOT NULL,
	released_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS question_answers (
	id TEXT PRIMARY KEY,
	question_id TEXT NOT NULL,
	class_id TEXT NOT NULL REFERENCES classes(id),
	student_name TEXT NOT NULL,
	student_id TEXT NOT NULL,
	answer TEXT NOT NULL,
	submitted_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS answer_analyses (
	question_id TEXT PRIMARY KEY,
	question_text TEXT NOT NULL,
	summary TEXT NOT NULL,
	analyzed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS exit_tickets (
	id TEXT PRIMARY KEY,
	class_id TEXT NOT NULL REFERENCES classes(id),
	student_name TEXT NOT NULL,
	student_id TEXT NOT NULL,
	feedback TEXT NOT NULL DEFAULT '',
	what_learned TEXT NOT NULL DEFAULT '',
	submitted_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS exit_ticket_summaries (
	class_id TEXT PRIMARY KEY REFERENCES classes(id),
	summary TEXT NOT NULL,
	suggestions_for_next_lesson TEXT NOT NULL,
	summarized_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_student_questions_class ON student_questions(class_id);
CREATE INDEX IF NOT EXISTS idx_released_questions_class ON released_questions(class_id);
CREATE INDEX IF NOT EXISTS idx_question_answers_class ON question_answers(class_id);
CREATE INDEX IF NOT EXISTS idx_question_answers_question ON question_answers(question_id);
CREATE INDEX IF NOT EXISTS idx_exit_tickets_class ON exit_tickets(class_id);
`

func createSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// insertTranscript upserts every row of one class transcript inside the
// caller's transaction.
func insertTranscript(tx *sql.Tx, t types.ClassTranscript) error {
	c := t.Class
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO classes (id, code, teacher_name, lesson_plan, teaching_notes, curriculum_context, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Code, c.TeacherName, c.LessonPlan, c.TeachingNotes, c.CurriculumContext, c.CreatedAt,
	); err != nil {
		return err
	}

	for _, q := range t.Questions {
		replySource, replyText := "", ""
		if q.Reply != nil {
			replySource, replyText = q.Reply.Source, q.Reply.Text
		}
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO student_questions (id, class_id, student_name, student_id, text, ai_suggestion, reply_source, reply_text, resolved, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, q.ClassID, q.StudentName, q.StudentID, q.Text, q.AISuggestion, replySource, replyText, q.Resolved, q.CreatedAt,
		); err != nil {
			return err
		}
	}

	for _, rq := range t.Released {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO released_questions (id, class_id, question_index, text, released_at)
			 VALUES (?, ?, ?, ?, ?)`,
			rq.ID, rq.ClassID, rq.Index, rq.Text, rq.ReleasedAt,
		); err != nil {
			return err
		}
	}

	for _, a := range t.Answers {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO question_answers (id, question_id, class_id, student_name, student_id, answer, submitted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.QuestionID, a.ClassID, a.StudentName, a.StudentID, a.Answer, a.SubmittedAt,
		); err != nil {
			return err
		}
	}

	for _, an := range t.Analyses {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO answer_analyses (question_id, question_text, summary, analyzed_at)
			 VALUES (?, ?, ?, ?)`,
			an.QuestionID, an.QuestionText, an.Summary, an.AnalyzedAt,
		); err != nil {
			return err
		}
	}

	for _, et := range t.Tickets {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO exit_tickets (id, class_id, student_name, student_id, feedback, what_learned, submitted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			et.ID, et.ClassID, et.StudentName, et.StudentID, et.Feedback, et.WhatLearned, et.SubmittedAt,
		); err != nil {
			return err
		}
	}

	if t.Summary != nil {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO exit_ticket_summaries (class_id, summary, suggestions_for_next_lesson, summarized_at)
			 VALUES (?, ?, ?, ?)`,
			t.Summary.ClassID, t.Summary.Summary, t.Summary.SuggestionsForNextLesson, t.Summary.SummarizedAt,
		); err != nil {
			return err
		}
	}

	return nil
}
