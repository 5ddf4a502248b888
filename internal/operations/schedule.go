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

type scheduleInput struct {
	Location string `validate:"required"`
	Time     string `validate:"required"`
	Day      string `validate:"required,weekday"`
}

// PostScheduleEntry validates the form and appends a schedule record.
// Course and instructor come from the profile, never from the form.
func PostScheduleEntry(ctx context.Context, store docstore.Store, appID string, form model.ScheduleForm, prof model.Profile) (model.ScheduleEntry, error) {
	if store == nil {
		metrics.CommandsTotal.WithLabelValues("post_schedule_entry", "error").Inc()
		return model.ScheduleEntry{}, &Error{Code: ErrStoreUnavailable}
	}
	if prof.AssignedCourse == "" {
		metrics.CommandsTotal.WithLabelValues("post_schedule_entry", "invalid").Inc()
		return model.ScheduleEntry{}, &Error{Code: ErrProfileCourseUnset}
	}

	input := scheduleInput{
		Location: strings.TrimSpace(form.Location),
		Time:     strings.TrimSpace(form.Time),
		Day:      strings.TrimSpace(form.Day),
	}
	if err := validate.Struct(input); err != nil {
		metrics.CommandsTotal.WithLabelValues("post_schedule_entry", "invalid").Inc()
		return model.ScheduleEntry{}, &Error{Code: validationCode(err)}
	}

	e := model.ScheduleEntry{
		Course:     prof.AssignedCourse,
		Location:   input.Location,
		Time:       input.Time,
		Day:        input.Day,
		Instructor: prof.DisplayName,
		PostedAt:   time.Now().UTC(),
	}
	id, err := store.AddRecord(ctx, content.SchedulePath(appID), e)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("post_schedule_entry", "error").Inc()
		return model.ScheduleEntry{}, &Error{Code: ErrStoreWriteFailed, Err: err}
	}
	e.ID = id
	metrics.CommandsTotal.WithLabelValues("post_schedule_entry", "ok").Inc()
	return e, nil
}
