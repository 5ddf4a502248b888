// Package portal owns the page state: the resolved session, the
// faculty profile, the two course feeds and the two entry forms. A
// single loop applies store snapshots to that state and notifies
// stream subscribers of what changed.
package portal

import (
	"context"
	"log/slog"
	"sync"

	"lectern/portal/internal/config"
	"lectern/portal/internal/content"
	"lectern/portal/internal/docstore"
	"lectern/portal/internal/metrics"
	"lectern/portal/internal/model"
	"lectern/portal/internal/operations"
	"lectern/portal/internal/profile"
	"lectern/portal/internal/session"
)

const (
	TopicSession        = "session"
	TopicProfile        = "profile"
	TopicAssignments    = "assignments"
	TopicSchedule       = "schedule"
	TopicAssignmentForm = "assignment_form"
	TopicScheduleForm   = "schedule_form"
)

type Portal struct {
	cfg     config.Config
	store   docstore.Store
	session *session.Session
	feeds   *content.Feeds
	log     *slog.Logger

	mu             sync.Mutex
	profile        model.Profile
	profileLoaded  bool
	profileWatch   *profile.Watch
	assignments    []model.Assignment
	schedule       []model.ScheduleEntry
	assignmentForm model.AssignmentForm
	scheduleForm   model.ScheduleForm

	subMu   sync.Mutex
	subs    map[int]chan string
	nextSub int
}

func New(cfg config.Config, store docstore.Store, sess *session.Session, logger *slog.Logger) *Portal {
	p := &Portal{
		cfg:     cfg,
		store:   store,
		session: sess,
		feeds:   content.NewFeeds(store, cfg.AppID, logger),
		log:     logger,
		subs:    make(map[int]chan string),
	}
	p.scheduleForm.Day = model.DefaultScheduleDay
	return p
}

// Run drives the portal until ctx is cancelled. It waits for the
// session, loads the profile, then applies snapshot deliveries as
// they arrive.
func (p *Portal) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-p.session.Ready():
	}
	p.publish(TopicSession)

	changes := p.session.Changes()
	var profileCh <-chan model.Profile

	for {
		select {
		case <-ctx.Done():
			p.teardown()
			return
		case ident, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			profileCh = p.reopenProfile(ctx, ident)
		case prof, ok := <-profileCh:
			if !ok {
				profileCh = nil
				continue
			}
			p.applyProfile(ctx, prof)
		case list := <-p.feeds.Assignments():
			p.mu.Lock()
			p.assignments = list
			p.mu.Unlock()
			p.publish(TopicAssignments)
		case entries := <-p.feeds.Schedule():
			p.mu.Lock()
			p.schedule = entries
			p.mu.Unlock()
			p.publish(TopicSchedule)
		}
	}
}

// reopenProfile swaps the profile watch to a new identity. On load
// failure the portal keeps running without a profile; commands will
// report the missing course.
func (p *Portal) reopenProfile(ctx context.Context, ident model.Identity) <-chan model.Profile {
	p.mu.Lock()
	if p.profileWatch != nil {
		p.profileWatch.Close()
		p.profileWatch = nil
	}
	p.mu.Unlock()

	prof, w, err := profile.Open(ctx, p.store, p.cfg.AppID, ident, p.log)
	if err != nil {
		p.log.Error("profile load failed", "identity_id", ident.ID, "error", err)
		return nil
	}
	p.mu.Lock()
	p.profileWatch = w
	p.mu.Unlock()
	p.applyProfile(ctx, prof)
	return w.Snapshots()
}

// applyProfile replaces the held profile wholesale and reseeds the
// profile-derived form fields. A course change retargets both feeds.
func (p *Portal) applyProfile(ctx context.Context, prof model.Profile) {
	p.mu.Lock()
	courseChanged := !p.profileLoaded || p.profile.AssignedCourse != prof.AssignedCourse
	p.profile = prof
	p.profileLoaded = true
	p.assignmentForm.Course = prof.AssignedCourse
	p.scheduleForm.Course = prof.AssignedCourse
	p.scheduleForm.Instructor = prof.DisplayName
	p.mu.Unlock()

	p.publish(TopicProfile)
	p.publish(TopicAssignmentForm)
	p.publish(TopicScheduleForm)
	if courseChanged {
		p.feeds.Retarget(ctx, prof.AssignedCourse)
	}
}

func (p *Portal) teardown() {
	p.mu.Lock()
	if p.profileWatch != nil {
		p.profileWatch.Close()
		p.profileWatch = nil
	}
	p.mu.Unlock()
	p.feeds.Close()

	p.subMu.Lock()
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
	p.subMu.Unlock()
}

func (p *Portal) Session() model.Session {
	return p.session.Snapshot()
}

func (p *Portal) Profile() (model.Profile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profile, p.profileLoaded
}

func (p *Portal) Assignments() []model.Assignment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Assignment, len(p.assignments))
	copy(out, p.assignments)
	return out
}

func (p *Portal) Schedule() []model.ScheduleEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ScheduleEntry, len(p.schedule))
	copy(out, p.schedule)
	return out
}

func (p *Portal) Forms() (model.AssignmentForm, model.ScheduleForm) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.assignmentForm, p.scheduleForm
}

// State is one consistent copy of everything the page renders. Profile
// is nil until the first profile value has loaded.
type State struct {
	Session        model.Session         `json:"session"`
	Profile        *model.Profile        `json:"profile"`
	Assignments    []model.Assignment    `json:"assignments"`
	Schedule       []model.ScheduleEntry `json:"schedule"`
	AssignmentForm model.AssignmentForm  `json:"assignmentForm"`
	ScheduleForm   model.ScheduleForm    `json:"scheduleForm"`
}

func (p *Portal) State() State {
	sess := p.session.Snapshot()
	p.mu.Lock()
	defer p.mu.Unlock()
	st := State{
		Session:        sess,
		Assignments:    make([]model.Assignment, len(p.assignments)),
		Schedule:       make([]model.ScheduleEntry, len(p.schedule)),
		AssignmentForm: p.assignmentForm,
		ScheduleForm:   p.scheduleForm,
	}
	copy(st.Assignments, p.assignments)
	copy(st.Schedule, p.schedule)
	if p.profileLoaded {
		prof := p.profile
		st.Profile = &prof
	}
	return st
}

// UpdateAssignmentForm applies the present fields to the draft and
// returns the result. Nothing is validated until submission.
func (p *Portal) UpdateAssignmentForm(title, description, dueDate *string) model.AssignmentForm {
	p.mu.Lock()
	if title != nil {
		p.assignmentForm.Title = *title
	}
	if description != nil {
		p.assignmentForm.Description = *description
	}
	if dueDate != nil {
		p.assignmentForm.DueDate = *dueDate
	}
	form := p.assignmentForm
	p.mu.Unlock()
	p.publish(TopicAssignmentForm)
	return form
}

// UpdateScheduleForm applies the present fields to the draft and
// returns the result. Course and instructor always come from the
// profile and cannot be patched.
func (p *Portal) UpdateScheduleForm(location, timeSlot, day *string) model.ScheduleForm {
	p.mu.Lock()
	if location != nil {
		p.scheduleForm.Location = *location
	}
	if timeSlot != nil {
		p.scheduleForm.Time = *timeSlot
	}
	if day != nil {
		p.scheduleForm.Day = *day
	}
	form := p.scheduleForm
	p.mu.Unlock()
	p.publish(TopicScheduleForm)
	return form
}

// SubmitAssignment posts the current draft. The draft resets only
// after the record is stored; failures leave it untouched.
func (p *Portal) SubmitAssignment(ctx context.Context) (model.Assignment, error) {
	p.mu.Lock()
	form := p.assignmentForm
	prof := p.profile
	loaded := p.profileLoaded
	p.mu.Unlock()

	if !loaded {
		return model.Assignment{}, &operations.Error{Code: operations.ErrProfileCourseUnset}
	}
	a, err := operations.PostAssignment(ctx, p.store, p.cfg.AppID, form, prof)
	if err != nil {
		p.log.Warn("assignment post failed", "error", err)
		return model.Assignment{}, err
	}

	p.mu.Lock()
	p.assignmentForm = model.AssignmentForm{Course: p.profile.AssignedCourse}
	p.mu.Unlock()
	p.publish(TopicAssignmentForm)
	p.log.Info("assignment posted", "id", a.ID, "course", a.Course)
	return a, nil
}

// SubmitSchedule posts the current draft. On success the draft
// resets with the day back on Monday.
func (p *Portal) SubmitSchedule(ctx context.Context) (model.ScheduleEntry, error) {
	p.mu.Lock()
	form := p.scheduleForm
	prof := p.profile
	loaded := p.profileLoaded
	p.mu.Unlock()

	if !loaded {
		return model.ScheduleEntry{}, &operations.Error{Code: operations.ErrProfileCourseUnset}
	}
	e, err := operations.PostScheduleEntry(ctx, p.store, p.cfg.AppID, form, prof)
	if err != nil {
		p.log.Warn("schedule post failed", "error", err)
		return model.ScheduleEntry{}, err
	}

	p.mu.Lock()
	p.scheduleForm = model.ScheduleForm{
		Day:        model.DefaultScheduleDay,
		Course:     p.profile.AssignedCourse,
		Instructor: p.profile.DisplayName,
	}
	p.mu.Unlock()
	p.publish(TopicScheduleForm)
	p.log.Info("schedule entry posted", "id", e.ID, "course", e.Course)
	return e, nil
}

// Subscribe registers a stream listener. Slow listeners lose events
// rather than stall the loop; cancel is safe to call twice.
func (p *Portal) Subscribe() (<-chan string, func()) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	id := p.nextSub
	p.nextSub++
	ch := make(chan string, 16)
	p.subs[id] = ch

	cancel := func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		if _, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (p *Portal) publish(topic string) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- topic:
		default:
			metrics.SubscriberDropped.Inc()
			p.log.Warn("subscriber lagging, event dropped", "subscriber", id, "topic", topic)
		}
	}
}
