package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared across handlers; Validate instances cache struct
// metadata, so one per process.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report field errors under their JSON names, not Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode parses a JSON request body into dst and applies its validate
// tags. The returned error is safe to show to the client.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			names := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				names = append(names, fe.Field())
			}
			return fmt.Errorf("%s required", strings.Join(names, ", "))
		}
		return errors.New("invalid request")
	}
	return nil
}

// Request bodies. Validation rejects missing fields before any store
// mutation; whitespace-only text is trimmed (and thereby rejected) at
// the handler.

type createClassRequest struct {
	TeacherName string `json:"teacherName" validate:"required"`
}

type setLessonRequest struct {
	LessonPlan string `json:"lessonPlan" validate:"required"`
}

type askQuestionRequest struct {
	ClassID     string `json:"classId" validate:"required"`
	StudentName string `json:"studentName" validate:"required"`
	StudentID   string `json:"studentId" validate:"required"`
	Text        string `json:"text" validate:"required"`
}

type teacherAnswerRequest struct {
	Answer string `json:"answer" validate:"required"`
}

type releaseQuestionRequest struct {
	ClassID string `json:"classId" validate:"required"`
	Text    string `json:"text" validate:"required"`
}

type submitAnswerRequest struct {
	QuestionID  string `json:"questionId" validate:"required"`
	ClassID     string `json:"classId" validate:"required"`
	StudentName string `json:"studentName" validate:"required"`
	StudentID   string `json:"studentId" validate:"required"`
	Answer      string `json:"answer" validate:"required"`
}

type exitTicketRequest struct {
	ClassID     string `json:"classId" validate:"required"`
	StudentName string `json:"studentName" validate:"required"`
	StudentID   string `json:"studentId" validate:"required"`
	Feedback    string `json:"feedback"`
	WhatLearned string `json:"whatLearned"`
}

type confusionRequest struct {
	ClassID string `json:"classId" validate:"required"`
	Text    string `json:"text" validate:"required"`
}

type teacherChatRequest struct {
	ClassID string `json:"classId" validate:"required"`
	Message string `json:"message" validate:"required"`
}

type concernsRequest struct {
	ClassID string `json:"classId" validate:"required"`
}
