package gateway

import (
	"fmt"
	"strings"
)

// formatInstructions is appended to every prose prompt so generated text
// renders consistently in the clients (Markdown sections, LaTeX math).
const formatInstructions = `Format your response in Markdown:
- Use ## for section headers and ### for subheaders (bold, clear).
- Use **bold** for key terms and titles; keep body text regular (not bold).
- For any math, use LaTeX: inline math in \( \) e.g. \( x^2 + 5 = 0 \), display math in \[ \] e.g. \[ \frac{1}{2} + \frac{1}{3} = \frac{5}{6} \]
- Use bullet lists where helpful.`

func teachingNotesPrompt(lessonPlan string) string {
	return fmt.Sprintf("You are an expert teacher coach. Given this lesson plan for the day, produce concise teaching notes with clear sections: key points to emphasize, common student misconceptions to address, suggested pacing, and 2-3 discussion prompts. Keep it practical and scannable.\n\n%s\n\nLesson plan:\n%s",
		formatInstructions, lessonPlan)
}

func suggestAnswerPrompt(question, curriculumContext string) string {
	return fmt.Sprintf("You are helping a teacher answer a student question in class. Use only the curriculum and teaching context below. Give a clear, concise suggested answer the teacher can use, plus one short example if helpful. Do not mention that you are an AI.\n\n%s\n\nCurriculum/notes context:\n%s\n\nStudent question:\n%s",
		formatInstructions, curriculumContext, question)
}

func answerStudentPrompt(question, curriculumContext string) string {
	return fmt.Sprintf("You are a helpful in-class assistant. A student asked the following. Answer based only on the curriculum and notes below. Be clear, friendly, and concise. Give a direct answer and one brief example if useful. Use the same formatting as teaching notes: headers, bold for key terms, LaTeX for math.\n\n%s\n\nCurriculum/notes:\n%s\n\nStudent question:\n%s",
		formatInstructions, curriculumContext, question)
}

func teacherChatPrompt(message, curriculumContext string) string {
	return fmt.Sprintf("You are a teaching assistant. The teacher is asking for clarification. Base your answer strictly on the curriculum and notes below. Be concise and practical.\n\n%s\n\nCurriculum/notes:\n%s\n\nTeacher question:\n%s",
		formatInstructions, curriculumContext, message)
}

func analyzeAnswersPrompt(questionText string, answers []StudentAnswer) string {
	blocks := make([]string, 0, len(answers))
	for _, a := range answers {
		blocks = append(blocks, fmt.Sprintf("Student: %s\nAnswer: %s", a.StudentName, a.Answer))
	}
	return fmt.Sprintf("Analyze these student answers to the following question. Summarize with clear sections: (1) **What students did well**, (2) **Common mistakes or misconceptions**, (3) **Suggestions for review**. Use headers, bold for section titles, and LaTeX for any math. Be brief and actionable.\n\n%s\n\nQuestion: %s\n\nAnswers:\n%s",
		formatInstructions, questionText, strings.Join(blocks, "\n\n"))
}

func summarizeTicketsPrompt(feedback []StudentFeedback) string {
	blocks := make([]string, 0, len(feedback))
	for _, f := range feedback {
		blocks = append(blocks, fmt.Sprintf("Student: %s\nFeedback: %s", f.StudentName, f.Feedback))
	}
	return fmt.Sprintf("Summarize this exit ticket feedback from students. Give: (1) main themes - what they learned well, (2) what was confusing or could be improved, (3) 2-3 specific suggestions for the next lesson. Be concise. Use Markdown with ## headers and **bold** for section titles.\n\n%s\n\n%s",
		formatInstructions, strings.Join(blocks, "\n\n"))
}

func nextLessonPrompt(summary string) string {
	return fmt.Sprintf("Based on this exit ticket summary from your class, give the teacher 2-3 concrete suggestions for the next lesson: what to reinforce, what to clarify, and one engagement idea. Be brief.\n\nSummary:\n%s", summary)
}

func concernsPrompt(questions []ConcernQuestion, tickets []ConcernTicket) string {
	var qBlock, eBlock string
	if len(questions) > 0 {
		lines := make([]string, 0, len(questions))
		for _, q := range questions {
			lines = append(lines, fmt.Sprintf("%s: %s", q.StudentName, q.Text))
		}
		qBlock = "**Student questions:**\n" + strings.Join(lines, "\n")
	}
	if len(tickets) > 0 {
		lines := make([]string, 0, len(tickets))
		for _, t := range tickets {
			lines = append(lines, fmt.Sprintf("%s: %s | Learned: %s", t.StudentName, t.Feedback, t.WhatLearned))
		}
		eBlock = "**Exit ticket feedback:**\n" + strings.Join(lines, "\n")
	}
	return fmt.Sprintf("At the end of the lesson, summarize \"These were the kid concerns\" based on: (1) all student questions asked during class, (2) all exit ticket feedback. Use clear headers (e.g. ## Student Questions, ## Exit Ticket Feedback, ## Summary of Concerns). Use **bold** for section titles. Be concise and actionable so the teacher knows what to address next.\n\n%s\n\n%s\n\n%s",
		formatInstructions, qBlock, eBlock)
}

func confusionPrompt(text, curriculumContext string) string {
	return fmt.Sprintf(`Consider this as possible student input (question or comment). Using the curriculum context, determine if it suggests confusion (repeated confusion phrases, misunderstood keywords). Reply in this exact JSON format only, no other text: {"confusionDetected": true or false, "suggestedRephrases": ["rephrase 1", "rephrase 2", "rephrase 3"], "explanation": "brief explanation if confusion"}. If no confusion, suggestedRephrases can be empty and explanation optional.

Curriculum:
%s

Student text:
%s`, curriculumContext, text)
}
