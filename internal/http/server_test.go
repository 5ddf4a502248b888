package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lectern/portal/internal/config"
	"lectern/portal/internal/docstore"
	"lectern/portal/internal/model"
	"lectern/portal/internal/portal"
	"lectern/portal/internal/session"
)

type errorResponse struct {
	Error string `json:"error"`
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func newTestServer(t *testing.T) (http.Handler, *portal.Portal) {
	t.Helper()
	cfg := config.Config{AppID: "portal", StreamHeartbeat: 30 * time.Second}
	store := docstore.NewMemory()
	sess := session.Start(cfg, discardLogger())
	p := portal.New(cfg, store, sess, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		sess.Close()
	})
	waitFor(t, "profile load", func() bool {
		_, ok := p.Profile()
		return ok
	})

	return NewServer(cfg, p, discardLogger()).Router(), p
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("unexpected health body %v", resp)
	}
}

func TestMetricsExposed(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGetSession(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/session", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sess model.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !sess.Ready {
		t.Fatalf("expected ready session")
	}
	if !strings.HasPrefix(sess.IdentityID, model.AnonymousIDPrefix) {
		t.Fatalf("expected anonymous identity, got %s", sess.IdentityID)
	}
}

func TestGetProfileBeforeLoad(t *testing.T) {
	cfg := config.Config{AppID: "portal"}
	p := portal.New(cfg, docstore.NewMemory(), session.Start(cfg, discardLogger()), discardLogger())
	router := NewServer(cfg, p, discardLogger()).Router()

	rec := doRequest(t, router, http.MethodGet, "/profile", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Error != "not_ready" {
		t.Fatalf("expected not_ready, got %s", resp.Error)
	}
}

func TestGetProfile(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/profile", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var prof model.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &prof); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if prof.AssignedCourse != "CS101" {
		t.Fatalf("expected default course, got %s", prof.AssignedCourse)
	}
}

func TestGetState(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st portal.State
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !st.Session.Ready {
		t.Fatalf("expected ready session")
	}
	if st.Profile == nil || st.Profile.AssignedCourse != "CS101" {
		t.Fatalf("expected loaded profile, got %+v", st.Profile)
	}
	if st.AssignmentForm.Course != "CS101" {
		t.Fatalf("expected assignment form course seeded, got %s", st.AssignmentForm.Course)
	}
	if st.ScheduleForm.Day != model.DefaultScheduleDay {
		t.Fatalf("expected schedule form day %s, got %s", model.DefaultScheduleDay, st.ScheduleForm.Day)
	}
}

func TestPatchAssignmentForm(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, http.MethodPatch, "/forms/assignment", `{"title":"Homework 1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var form model.AssignmentForm
	if err := json.Unmarshal(rec.Body.Bytes(), &form); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if form.Title != "Homework 1" {
		t.Fatalf("expected patched title, got %s", form.Title)
	}
	if form.Course != "CS101" {
		t.Fatalf("expected profile course on form, got %s", form.Course)
	}
}

func TestPatchAssignmentFormUnknownField(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, http.MethodPatch, "/forms/assignment", `{"course":"MATH201"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Error != "unknown_field" {
		t.Fatalf("expected unknown_field, got %s", resp.Error)
	}
}

func TestDecodeErrorCode(t *testing.T) {
	var req patchAssignmentFormRequest
	err := decodeJSON(httptest.NewRequest(http.MethodPatch, "/forms/assignment", strings.NewReader(`{"bogus":1}`)), &req)
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if code := decodeErrorCode(err); code != "unknown_field" {
		t.Fatalf("expected unknown_field, got %s", code)
	}

	// An error that merely mentions the phrase is not a rejected field.
	if code := decodeErrorCode(errors.New(`parsing "unknown field": bad value`)); code != "invalid_request" {
		t.Fatalf("expected invalid_request, got %s", code)
	}
}

func TestPatchAssignmentFormMalformed(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, http.MethodPatch, "/forms/assignment", `{"title":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Error != "invalid_request" {
		t.Fatalf("expected invalid_request, got %s", resp.Error)
	}
}

func TestPostAssignmentFlow(t *testing.T) {
	router, p := newTestServer(t)

	doRequest(t, router, http.MethodPatch, "/forms/assignment", `{"title":"Homework 1","description":"Read chapter 3","dueDate":"2026-04-01"}`)
	rec := doRequest(t, router, http.MethodPost, "/assignments", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var a model.Assignment
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if a.ID == "" || a.Course != "CS101" {
		t.Fatalf("unexpected assignment %+v", a)
	}

	rec = doRequest(t, router, http.MethodGet, "/forms", "")
	var forms formsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &forms); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if forms.Assignment.Title != "" {
		t.Fatalf("expected reset form, got %+v", forms.Assignment)
	}

	waitFor(t, "assignment feed", func() bool {
		return len(p.Assignments()) == 1
	})
	rec = doRequest(t, router, http.MethodGet, "/assignments", "")
	var list []model.Assignment
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Homework 1" {
		t.Fatalf("unexpected assignments %+v", list)
	}
}

func TestPostAssignmentValidationError(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, http.MethodPost, "/assignments", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Error != "missing_title" {
		t.Fatalf("expected missing_title, got %s", resp.Error)
	}
}

func TestPostScheduleFlow(t *testing.T) {
	router, _ := newTestServer(t)

	doRequest(t, router, http.MethodPatch, "/forms/schedule", `{"location":"SW-305","time":"9:00-10:30","day":"Tuesday"}`)
	rec := doRequest(t, router, http.MethodPost, "/schedule", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var e model.ScheduleEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if e.Location != "SW-305" || e.Day != "Tuesday" || e.Instructor != "New Faculty" {
		t.Fatalf("unexpected entry %+v", e)
	}

	rec = doRequest(t, router, http.MethodGet, "/forms", "")
	var forms formsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &forms); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if forms.Schedule.Day != "Monday" || forms.Schedule.Location != "" {
		t.Fatalf("expected reset schedule form, got %+v", forms.Schedule)
	}
}

func TestPostScheduleInvalidDay(t *testing.T) {
	router, _ := newTestServer(t)

	doRequest(t, router, http.MethodPatch, "/forms/schedule", `{"location":"SW-305","time":"9:00","day":"Caturday"}`)
	rec := doRequest(t, router, http.MethodPost, "/schedule", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Error != "invalid_day" {
		t.Fatalf("expected invalid_day, got %s", resp.Error)
	}

	rec = doRequest(t, router, http.MethodGet, "/forms", "")
	var forms formsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &forms); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if forms.Schedule.Day != "Caturday" {
		t.Fatalf("expected form untouched on failure, got %+v", forms.Schedule)
	}
}

func TestStreamSendsInitialSnapshot(t *testing.T) {
	router, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, topic := range streamTopics {
		if !strings.Contains(body, "event: "+topic+"\n") {
			t.Fatalf("expected initial %s event, body:\n%s", topic, body)
		}
	}
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("expected event-stream content type, got %s", rec.Header().Get("Content-Type"))
	}
}
