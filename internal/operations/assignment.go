package operations

import (
	"context"
	"strings"
	"time"

	"lectern/portal/internal/content"
	"lectern/portal/internal/docstore"
	"lectern/portal/internal/metrics"
	"lectern/portal/internal/model"
)

type assignmentInput struct {
	Title       string `validate:"required"`
	Description string `validate:"required"`
	DueDate     string `validate:"required"`
}

// PostAssignment validates the form and appends a new assignment
// record for the profile's assigned course. The form is never
// partially applied: validation failures leave the store untouched.
func PostAssignment(ctx context.Context, store docstore.Store, appID string, form model.AssignmentForm, prof model.Profile) (model.Assignment, error) {
	if store == nil {
		metrics.CommandsTotal.WithLabelValues("post_assignment", "error").Inc()
		return model.Assignment{}, &Error{Code: ErrStoreUnavailable}
	}
	if prof.AssignedCourse == "" {
		metrics.CommandsTotal.WithLabelValues("post_assignment", "invalid").Inc()
		return model.Assignment{}, &Error{Code: ErrProfileCourseUnset}
	}

	input := assignmentInput{
		Title:       strings.TrimSpace(form.Title),
		Description: strings.TrimSpace(form.Description),
		DueDate:     strings.TrimSpace(form.DueDate),
	}
	if err := validate.Struct(input); err != nil {
		metrics.CommandsTotal.WithLabelValues("post_assignment", "invalid").Inc()
		return model.Assignment{}, &Error{Code: validationCode(err)}
	}
	due, err := model.ParseDate(input.DueDate)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("post_assignment", "invalid").Inc()
		return model.Assignment{}, &Error{Code: ErrInvalidDueDate}
	}

	a := model.Assignment{
		Title:       input.Title,
		Description: input.Description,
		Course:      prof.AssignedCourse,
		DueDate:     &due,
		PostedBy:    prof.DisplayName,
		PostedAt:    time.Now().UTC(),
	}
	id, err := store.AddRecord(ctx, content.AssignmentsPath(appID), a)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("post_assignment", "error").Inc()
		return model.Assignment{}, &Error{Code: ErrStoreWriteFailed, Err: err}
	}
	a.ID = id
	metrics.CommandsTotal.WithLabelValues("post_assignment", "ok").Inc()
	return a, nil
}
