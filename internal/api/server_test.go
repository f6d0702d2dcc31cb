package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"classboard/internal/classroom"
	"classboard/internal/gateway"
	"classboard/internal/store"
	"classboard/pkg/types"
)

// stubGenerator satisfies classroom.Generator with canned replies; tests
// override individual fields to simulate gateway failures.
type stubGenerator struct {
	notesErr     error
	suggestErr   error
	answerErr    error
	confusionOut gateway.ConfusionResult
}

func (g *stubGenerator) GenerateTeachingNotes(context.Context, string) (string, error) {
	if g.notesErr != nil {
		return "", g.notesErr
	}
	return "generated notes", nil
}

func (g *stubGenerator) SuggestAnswer(context.Context, string, string) (string, error) {
	if g.suggestErr != nil {
		return "", g.suggestErr
	}
	return "suggested answer", nil
}

func (g *stubGenerator) AnswerStudent(context.Context, string, string) (string, error) {
	if g.answerErr != nil {
		return "", g.answerErr
	}
	return "ai answer", nil
}

func (g *stubGenerator) TeacherChat(context.Context, string, string) (string, error) {
	return "chat reply", nil
}

func (g *stubGenerator) AnalyzeAnswers(context.Context, string, []gateway.StudentAnswer) (string, error) {
	return "analysis summary", nil
}

func (g *stubGenerator) SummarizeExitTickets(context.Context, []gateway.StudentFeedback) (string, error) {
	return "ticket summary", nil
}

func (g *stubGenerator) SuggestNextLesson(context.Context, string) (string, error) {
	return "next lesson ideas", nil
}

func (g *stubGenerator) SummarizeConcerns(context.Context, []gateway.ConcernQuestion, []gateway.ConcernTicket) (string, error) {
	return "concern brief", nil
}

func (g *stubGenerator) DetectConfusion(context.Context, string, string) (gateway.ConfusionResult, error) {
	return g.confusionOut, nil
}

type memoryArchiver struct {
	archived []types.ClassTranscript
	err      error
}

func (a *memoryArchiver) ArchiveClass(_ context.Context, t types.ClassTranscript) error {
	if a.err != nil {
		return a.err
	}
	a.archived = append(a.archived, t)
	return nil
}

type testEnv struct {
	store    *store.Store
	gen      *stubGenerator
	archiver *memoryArchiver
	srv      *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.New()
	gen := &stubGenerator{confusionOut: gateway.ConfusionResult{SuggestedRephrases: []string{}}}
	svc := classroom.NewService(st, gen, classroom.Config{
		NotesTimeout:    time.Second,
		AIFallbackDelay: time.Nanosecond,
	})
	ar := &memoryArchiver{}
	server := NewServer(st, svc, nil, ar, 5*time.Second)
	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)
	return &testEnv{store: st, gen: gen, archiver: ar, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func decodeInto(t *testing.T, raw []byte, dst any) {
	t.Helper()
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func wantStatus(t *testing.T, resp *http.Response, want int, raw []byte) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d; body %s", resp.StatusCode, want, raw)
	}
}

func TestClassLifecycle(t *testing.T) {
	env := newTestEnv(t)

	// Teacher creates a class.
	resp, raw := env.do(t, "POST", "/api/classes", map[string]string{"teacherName": "Ada"})
	wantStatus(t, resp, http.StatusCreated, raw)
	var class types.ClassSession
	decodeInto(t, raw, &class)
	if class.TeacherName != "Ada" || !types.IsValidClassCode(class.Code) {
		t.Fatalf("class = %+v", class)
	}

	// Student joins with a sloppily typed code.
	resp, raw = env.do(t, "GET", "/api/classes?code=%20"+class.Code+"%20", nil)
	wantStatus(t, resp, http.StatusOK, raw)
	var joined types.ClassSession
	decodeInto(t, raw, &joined)
	if joined.ID != class.ID {
		t.Fatalf("joined wrong class: %+v", joined)
	}

	// Lesson plan with generated notes.
	resp, raw = env.do(t, "POST", "/api/classes/"+class.ID+"/lesson", map[string]string{"lessonPlan": "optics"})
	wantStatus(t, resp, http.StatusOK, raw)
	decodeInto(t, raw, &joined)
	if joined.TeachingNotes != "generated notes" {
		t.Fatalf("notes = %q", joined.TeachingNotes)
	}

	// Student asks a question; suggestion arrives with it.
	resp, raw = env.do(t, "POST", "/api/questions", map[string]string{
		"classId": class.ID, "studentName": "Sam", "studentId": "sid-1", "text": "Why is the sky blue?",
	})
	wantStatus(t, resp, http.StatusCreated, raw)
	var asked struct {
		Question   types.StudentQuestion `json:"question"`
		Suggestion string                `json:"suggestion"`
	}
	decodeInto(t, raw, &asked)
	if asked.Suggestion != "suggested answer" || asked.Question.Resolved {
		t.Fatalf("ask response = %+v", asked)
	}

	// Teacher answers; the list reflects the resolved question with the
	// flattened teacherAnswered field and no aiAnswered field.
	resp, raw = env.do(t, "POST", "/api/questions/"+asked.Question.ID+"/teacher-answer",
		map[string]string{"answer": "Rayleigh scattering"})
	wantStatus(t, resp, http.StatusOK, raw)

	resp, raw = env.do(t, "GET", "/api/questions?classId="+class.ID, nil)
	wantStatus(t, resp, http.StatusOK, raw)
	var rawList []map[string]any
	decodeInto(t, raw, &rawList)
	if len(rawList) != 1 {
		t.Fatalf("question list = %+v", rawList)
	}
	if rawList[0]["teacherAnswered"] != "Rayleigh scattering" || rawList[0]["resolved"] != true {
		t.Errorf("wire shape = %+v", rawList[0])
	}
	if _, present := rawList[0]["aiAnswered"]; present {
		t.Error("aiAnswered must be omitted for a teacher-answered question")
	}

	// Teacher releases an exercise; index comes from the server.
	resp, raw = env.do(t, "POST", "/api/released", map[string]any{
		"classId": class.ID, "text": "List two colors",
	})
	wantStatus(t, resp, http.StatusCreated, raw)
	var released types.ReleasedQuestion
	decodeInto(t, raw, &released)
	if released.Index != 0 || released.Text != "List two colors" {
		t.Fatalf("released = %+v", released)
	}

	// Two students answer.
	for i, sid := range []string{"sid-1", "sid-2"} {
		resp, raw = env.do(t, "POST", "/api/answers", map[string]string{
			"questionId": released.ID, "classId": class.ID,
			"studentName": "S" + sid, "studentId": sid, "answer": fmt.Sprintf("answer %d", i),
		})
		wantStatus(t, resp, http.StatusCreated, raw)
	}
	resp, raw = env.do(t, "GET", "/api/answers?questionId="+released.ID, nil)
	wantStatus(t, resp, http.StatusOK, raw)
	var answers []types.QuestionAnswer
	decodeInto(t, raw, &answers)
	if len(answers) != 2 || answers[0].Answer != "answer 0" {
		t.Fatalf("answers = %+v", answers)
	}

	// Analysis of the answers.
	resp, raw = env.do(t, "POST", "/api/released/"+released.ID+"/analyze", nil)
	wantStatus(t, resp, http.StatusOK, raw)
	resp, raw = env.do(t, "GET", "/api/released/"+released.ID+"/analysis", nil)
	wantStatus(t, resp, http.StatusOK, raw)
	var analysis types.AnswerAnalysis
	decodeInto(t, raw, &analysis)
	if analysis.Summary != "analysis summary" {
		t.Fatalf("analysis = %+v", analysis)
	}

	// Exit tickets and their summary.
	resp, raw = env.do(t, "POST", "/api/exit-tickets", map[string]string{
		"classId": class.ID, "studentName": "Sam", "studentId": "sid-1",
		"feedback": "clear lesson", "whatLearned": "scattering",
	})
	wantStatus(t, resp, http.StatusCreated, raw)

	resp, raw = env.do(t, "GET", "/api/classes/"+class.ID+"/exit-summary", nil)
	wantStatus(t, resp, http.StatusNotFound, raw)

	resp, raw = env.do(t, "POST", "/api/classes/"+class.ID+"/exit-summary", nil)
	wantStatus(t, resp, http.StatusOK, raw)
	var summary types.ExitTicketSummary
	decodeInto(t, raw, &summary)
	if summary.Summary != "ticket summary" || summary.SuggestionsForNextLesson != "next lesson ideas" {
		t.Fatalf("summary = %+v", summary)
	}

	// Progress roll-up covers both students.
	resp, raw = env.do(t, "GET", "/api/classes/"+class.ID+"/progress", nil)
	wantStatus(t, resp, http.StatusOK, raw)
	var progress []types.StudentProgress
	decodeInto(t, raw, &progress)
	if len(progress) != 2 {
		t.Fatalf("progress = %+v", progress)
	}

	// Archive the class transcript.
	resp, raw = env.do(t, "POST", "/api/classes/"+class.ID+"/archive", nil)
	wantStatus(t, resp, http.StatusOK, raw)
	if len(env.archiver.archived) != 1 || len(env.archiver.archived[0].Questions) != 1 {
		t.Fatalf("archived = %+v", env.archiver.archived)
	}
}

func TestAskQuestion_SuggestionFailureStillCreates(t *testing.T) {
	env := newTestEnv(t)
	env.gen.suggestErr = &gateway.Error{Kind: gateway.KindQuota, Message: "rate limited"}

	resp, raw := env.do(t, "POST", "/api/classes", map[string]string{"teacherName": "Ada"})
	var class types.ClassSession
	decodeInto(t, raw, &class)

	resp, raw = env.do(t, "POST", "/api/questions", map[string]string{
		"classId": class.ID, "studentName": "Sam", "studentId": "sid-1", "text": "Why?",
	})
	wantStatus(t, resp, http.StatusCreated, raw)
	var out struct {
		Question        types.StudentQuestion `json:"question"`
		SuggestionError string                `json:"suggestionError"`
	}
	decodeInto(t, raw, &out)
	if out.Question.ID == "" || out.SuggestionError != "rate limited" {
		t.Fatalf("response = %+v", out)
	}
	if got := env.store.GetStudentQuestionsByClass(class.ID); len(got) != 1 {
		t.Fatalf("question not persisted: %+v", got)
	}
}

func TestValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"create class without name", "POST", "/api/classes", map[string]string{}},
		{"create class with blank name", "POST", "/api/classes", map[string]string{"teacherName": "   "}},
		{"join without code", "GET", "/api/classes", nil},
		{"ask without text", "POST", "/api/questions", map[string]string{"classId": "x", "studentName": "Sam", "studentId": "sid"}},
		{"release without text", "POST", "/api/released", map[string]string{"classId": "x"}},
		{"answer without fields", "POST", "/api/answers", map[string]string{"questionId": "x"}},
		{"list questions without classId", "GET", "/api/questions", nil},
		{"list answers without filter", "GET", "/api/answers", nil},
		{"malformed JSON", "POST", "/api/classes", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			var raw []byte
			if tt.name == "malformed JSON" {
				req, _ := http.NewRequest("POST", env.srv.URL+"/api/classes", bytes.NewBufferString("{nope"))
				req.Header.Set("Content-Type", "application/json")
				r, err := http.DefaultClient.Do(req)
				if err != nil {
					t.Fatal(err)
				}
				defer r.Body.Close()
				var buf bytes.Buffer
				buf.ReadFrom(r.Body)
				resp, raw = r, buf.Bytes()
			} else {
				resp, raw = env.do(t, tt.method, tt.path, tt.body)
			}
			wantStatus(t, resp, http.StatusBadRequest, raw)
			var body map[string]string
			decodeInto(t, raw, &body)
			if body["error"] == "" {
				t.Errorf("missing error message in %s", raw)
			}
		})
	}
}

func TestNotFoundMapping(t *testing.T) {
	env := newTestEnv(t)

	paths := []struct {
		method, path string
		body         any
	}{
		{"GET", "/api/classes/missing", nil},
		{"GET", "/api/classes?code=ZZZZ99", nil},
		{"POST", "/api/classes/missing/lesson", map[string]string{"lessonPlan": "x"}},
		{"GET", "/api/classes/missing/progress", nil},
		{"POST", "/api/questions/missing/teacher-answer", map[string]string{"answer": "x"}},
		{"POST", "/api/questions/missing/ai-answer", nil},
		{"GET", "/api/released/missing", nil},
		{"POST", "/api/released/missing/analyze", nil},
		{"GET", "/api/released/missing/analysis", nil},
		{"GET", "/api/classes/missing/exit-summary", nil},
		{"POST", "/api/classes/missing/archive", nil},
	}
	for _, p := range paths {
		resp, raw := env.do(t, p.method, p.path, p.body)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404; body %s", p.method, p.path, resp.StatusCode, raw)
		}
	}
}

func TestGatewayErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"credential", &gateway.Error{Kind: gateway.KindCredential, Message: "bad key"}, http.StatusUnauthorized},
		{"quota", &gateway.Error{Kind: gateway.KindQuota, Message: "rate limited"}, http.StatusTooManyRequests},
		{"transient", &gateway.Error{Kind: gateway.KindTransient, Message: "flaky"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.gen.answerErr = tt.err

			_, raw := env.do(t, "POST", "/api/classes", map[string]string{"teacherName": "Ada"})
			var class types.ClassSession
			decodeInto(t, raw, &class)
			q, err := env.store.AddStudentQuestion(class.ID, "Sam", "sid-1", "Why?")
			if err != nil {
				t.Fatal(err)
			}

			resp, raw := env.do(t, "POST", "/api/questions/"+q.ID+"/ai-answer", nil)
			wantStatus(t, resp, tt.wantStatus, raw)
		})
	}
}

func TestAIAnswer_FallbackTooSoonIs400(t *testing.T) {
	st := store.New()
	gen := &stubGenerator{}
	svc := classroom.NewService(st, gen, classroom.Config{AIFallbackDelay: time.Hour})
	server := NewServer(st, svc, nil, nil, 5*time.Second)
	srv := httptest.NewServer(server)
	defer srv.Close()

	c, _ := st.CreateClass("Ada")
	q, _ := st.AddStudentQuestion(c.ID, "Sam", "sid-1", "Why?")

	resp, err := http.Post(srv.URL+"/api/questions/"+q.ID+"/ai-answer", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestArchiveNotConfigured(t *testing.T) {
	st := store.New()
	svc := classroom.NewService(st, &stubGenerator{}, classroom.Config{})
	server := NewServer(st, svc, nil, nil, 5*time.Second)
	srv := httptest.NewServer(server)
	defer srv.Close()

	c, _ := st.CreateClass("Ada")
	resp, err := http.Post(srv.URL+"/api/classes/"+c.ID+"/archive", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestArchiveFailureIs500(t *testing.T) {
	env := newTestEnv(t)
	env.archiver.err = errors.New("disk full")

	_, raw := env.do(t, "POST", "/api/classes", map[string]string{"teacherName": "Ada"})
	var class types.ClassSession
	decodeInto(t, raw, &class)

	resp, raw := env.do(t, "POST", "/api/classes/"+class.ID+"/archive", nil)
	wantStatus(t, resp, http.StatusInternalServerError, raw)
}

func TestCORSAndPreflight(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/classes", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("preflight status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS origin header")
	}
}

func TestTeacherChatAndConcerns(t *testing.T) {
	env := newTestEnv(t)

	_, raw := env.do(t, "POST", "/api/classes", map[string]string{"teacherName": "Ada"})
	var class types.ClassSession
	decodeInto(t, raw, &class)

	resp, raw := env.do(t, "POST", "/api/teacher-chat", map[string]string{
		"classId": class.ID, "message": "how to explain simply?",
	})
	wantStatus(t, resp, http.StatusOK, raw)
	var chat map[string]string
	decodeInto(t, raw, &chat)
	if chat["response"] != "chat reply" {
		t.Errorf("chat = %+v", chat)
	}

	// No questions or tickets yet: concerns is a rejected precondition.
	resp, raw = env.do(t, "POST", "/api/concerns", map[string]string{"classId": class.ID})
	wantStatus(t, resp, http.StatusBadRequest, raw)

	env.store.AddStudentQuestion(class.ID, "Sam", "sid-1", "Why?")
	resp, raw = env.do(t, "POST", "/api/concerns", map[string]string{"classId": class.ID})
	wantStatus(t, resp, http.StatusOK, raw)
	var concerns map[string]string
	decodeInto(t, raw, &concerns)
	if concerns["summary"] != "concern brief" {
		t.Errorf("concerns = %+v", concerns)
	}
}

func TestDetectConfusionEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.gen.confusionOut = gateway.ConfusionResult{
		ConfusionDetected:  true,
		SuggestedRephrases: []string{"What makes the sky blue?"},
	}

	_, raw := env.do(t, "POST", "/api/classes", map[string]string{"teacherName": "Ada"})
	var class types.ClassSession
	decodeInto(t, raw, &class)

	resp, raw := env.do(t, "POST", "/api/confusion", map[string]string{
		"classId": class.ID, "text": "sky why blue??",
	})
	wantStatus(t, resp, http.StatusOK, raw)
	var result gateway.ConfusionResult
	decodeInto(t, raw, &result)
	if !result.ConfusionDetected || len(result.SuggestedRephrases) != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/api/classes", map[string]string{"teacherName": "Ada"})

	resp, raw := env.do(t, "GET", "/health", nil)
	wantStatus(t, resp, http.StatusOK, raw)
	var health struct {
		Status         string         `json:"status"`
		Store          map[string]int `json:"store"`
		PollInterval   int            `json:"poll_interval_seconds"`
		ArchiveEnabled bool           `json:"archive_enabled"`
	}
	decodeInto(t, raw, &health)
	if health.Status != "healthy" || health.Store["classes"] != 1 {
		t.Errorf("health = %+v", health)
	}
	if health.PollInterval != 5 || !health.ArchiveEnabled {
		t.Errorf("health config fields = %+v", health)
	}
}
