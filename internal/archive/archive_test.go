package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"classboard/pkg/types"
)

func openTestArchiver(t *testing.T) *Archiver {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "transcripts.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func sampleTranscript() types.ClassTranscript {
	now := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	return types.ClassTranscript{
		Class: types.ClassSession{
			ID:          "class-1",
			Code:        "ABC234",
			TeacherName: "Ada",
			LessonPlan:  "optics",
			CreatedAt:   now,
		},
		Questions: []types.StudentQuestion{
			{
				ID: "q-1", ClassID: "class-1", StudentName: "Sam", StudentID: "sid-1",
				Text:     "Why is the sky blue?",
				Reply:    &types.QuestionReply{Source: types.ReplySourceTeacher, Text: "scattering"},
				Resolved: true, CreatedAt: now,
			},
			{
				ID: "q-2", ClassID: "class-1", StudentName: "Lee", StudentID: "sid-2",
				Text: "What about sunsets?", CreatedAt: now.Add(time.Minute),
			},
		},
		Released: []types.ReleasedQuestion{
			{ID: "rq-1", ClassID: "class-1", Index: 0, Text: "List two colors", ReleasedAt: now},
		},
		Answers: []types.QuestionAnswer{
			{ID: "a-1", QuestionID: "rq-1", ClassID: "class-1", StudentName: "Sam", StudentID: "sid-1", Answer: "red, blue", SubmittedAt: now},
		},
		Analyses: []types.AnswerAnalysis{
			{QuestionID: "rq-1", QuestionText: "List two colors", Summary: "fine", AnalyzedAt: now},
		},
		Tickets: []types.ExitTicket{
			{ID: "t-1", ClassID: "class-1", StudentName: "Sam", StudentID: "sid-1", Feedback: "clear", WhatLearned: "optics", SubmittedAt: now},
		},
		Summary: &types.ExitTicketSummary{ClassID: "class-1", Summary: "good", SuggestionsForNextLesson: "more", SummarizedAt: now},
	}
}

func TestArchiveClassRoundTrip(t *testing.T) {
	a := openTestArchiver(t)

	if err := a.ArchiveClass(context.Background(), sampleTranscript()); err != nil {
		t.Fatalf("ArchiveClass: %v", err)
	}

	counts, err := a.Counts("class-1")
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	want := map[string]int{
		"classes":            1,
		"student_questions":  2,
		"released_questions": 1,
		"question_answers":   1,
		"exit_tickets":       1,
	}
	for table, n := range want {
		if counts[table] != n {
			t.Errorf("%s count = %d, want %d", table, counts[table], n)
		}
	}

	var replySource, replyText string
	var resolved bool
	err = a.db.QueryRow(
		"SELECT reply_source, reply_text, resolved FROM student_questions WHERE id = ?", "q-1",
	).Scan(&replySource, &replyText, &resolved)
	if err != nil {
		t.Fatal(err)
	}
	if replySource != types.ReplySourceTeacher || replyText != "scattering" || !resolved {
		t.Errorf("archived reply = (%q, %q, %v)", replySource, replyText, resolved)
	}
}

func TestArchiveClass_ReArchiveReplacesRows(t *testing.T) {
	a := openTestArchiver(t)
	tr := sampleTranscript()

	if err := a.ArchiveClass(context.Background(), tr); err != nil {
		t.Fatal(err)
	}
	// Second archive of the same class, now with one more answer; rows
	// upsert rather than duplicate.
	tr.Answers = append(tr.Answers, types.QuestionAnswer{
		ID: "a-2", QuestionID: "rq-1", ClassID: "class-1",
		StudentName: "Lee", StudentID: "sid-2", Answer: "green", SubmittedAt: time.Now().UTC(),
	})
	if err := a.ArchiveClass(context.Background(), tr); err != nil {
		t.Fatal(err)
	}

	counts, err := a.Counts("class-1")
	if err != nil {
		t.Fatal(err)
	}
	if counts["classes"] != 1 || counts["student_questions"] != 2 || counts["question_answers"] != 2 {
		t.Errorf("counts after re-archive = %+v", counts)
	}
}

func TestClose(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "transcripts.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Idempotent.
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := a.ArchiveClass(context.Background(), sampleTranscript()); err == nil {
		t.Error("expected error writing to closed archiver")
	}
}
