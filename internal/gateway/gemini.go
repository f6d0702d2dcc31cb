// Package gateway is the AI enrichment collaborator: given text and
// curriculum context it returns generated text (teaching notes, suggested
// answers, analyses, summaries) or a classified error. The rest of the
// system depends only on the request/response contract and the failure
// taxonomy, never on the upstream service's internals.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// DefaultModel is used when no model is configured. 2.5-flash has a
// separate quota pool from 2.0-flash.
const DefaultModel = "gemini-2.5-flash"

// StudentAnswer is one student's submission handed to answer analysis.
type StudentAnswer struct {
	StudentName string
	Answer      string
}

// StudentFeedback is one exit-ticket entry handed to summarization.
type StudentFeedback struct {
	StudentName string
	Feedback    string
}

// ConcernQuestion and ConcernTicket feed the end-of-class concern roll-up.
type ConcernQuestion struct {
	StudentName string
	Text        string
}

type ConcernTicket struct {
	StudentName string
	Feedback    string
	WhatLearned string
}

// Client calls the Gemini generateContent endpoint. It is safe for
// concurrent use; every request is bounded by the configured timeout and
// the caller's context.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	httpc   *http.Client
}

// NewClient builds a Gemini client. An empty apiKey is allowed and makes
// every call fail with a credential error, so the server can run (and
// the store keep working) without AI configured.
func NewClient(apiKey, model string, timeout time.Duration) *Client {
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// generateContent wire types, reduced to the fields this client reads.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// generate performs one prompt round-trip and returns the concatenated
// candidate text.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", errMissingKey()
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", &Error{Kind: KindTransient, Message: fmt.Sprintf("AI request failed: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Kind: KindTransient, Status: resp.StatusCode, Message: "AI response could not be read"}
	}

	var parsed generateResponse
	_ = json.Unmarshal(raw, &parsed) // error bodies may not be JSON; classify below either way

	if resp.StatusCode != http.StatusOK {
		detail := ""
		if parsed.Error != nil {
			detail = parsed.Error.Message
		}
		return "", classify(resp.StatusCode, detail)
	}

	var sb strings.Builder
	for _, cand := range parsed.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &Error{Kind: KindTransient, Status: resp.StatusCode, Message: "AI returned no content. Try again."}
	}
	return text, nil
}

// GenerateTeachingNotes turns a lesson plan into teaching notes.
func (c *Client) GenerateTeachingNotes(ctx context.Context, lessonPlan string) (string, error) {
	return c.generate(ctx, teachingNotesPrompt(lessonPlan))
}

// SuggestAnswer drafts an answer the teacher can use for a student
// question, grounded in the curriculum context.
func (c *Client) SuggestAnswer(ctx context.Context, question, curriculumContext string) (string, error) {
	return c.generate(ctx, suggestAnswerPrompt(question, curriculumContext))
}

// AnswerStudent answers a student directly, as the in-class assistant.
func (c *Client) AnswerStudent(ctx context.Context, question, curriculumContext string) (string, error) {
	return c.generate(ctx, answerStudentPrompt(question, curriculumContext))
}

// TeacherChat answers a teacher's ad-hoc clarification request.
func (c *Client) TeacherChat(ctx context.Context, message, curriculumContext string) (string, error) {
	return c.generate(ctx, teacherChatPrompt(message, curriculumContext))
}

// AnalyzeAnswers summarizes how a class answered one released question.
func (c *Client) AnalyzeAnswers(ctx context.Context, questionText string, answers []StudentAnswer) (string, error) {
	return c.generate(ctx, analyzeAnswersPrompt(questionText, answers))
}

// SummarizeExitTickets rolls up end-of-class feedback.
func (c *Client) SummarizeExitTickets(ctx context.Context, feedback []StudentFeedback) (string, error) {
	return c.generate(ctx, summarizeTicketsPrompt(feedback))
}

// SuggestNextLesson derives next-lesson suggestions from a ticket summary.
func (c *Client) SuggestNextLesson(ctx context.Context, summary string) (string, error) {
	return c.generate(ctx, nextLessonPrompt(summary))
}

// SummarizeConcerns rolls up student questions and exit-ticket feedback
// into an end-of-class concerns brief.
func (c *Client) SummarizeConcerns(ctx context.Context, questions []ConcernQuestion, tickets []ConcernTicket) (string, error) {
	return c.generate(ctx, concernsPrompt(questions, tickets))
}
