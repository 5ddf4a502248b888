package model

import "time"

// AnonymousIDPrefix marks identities synthesized for sessions that could not
// present a verifiable token.
const AnonymousIDPrefix = "anon-"

type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Anonymous   bool   `json:"anonymous"`
}

type Session struct {
	IdentityID string `json:"identityId"`
	Ready      bool   `json:"ready"`
}

type Profile struct {
	OwnerID        string    `json:"ownerId"`
	DisplayName    string    `json:"displayName"`
	FacultyShortID string    `json:"facultyShortId"`
	Email          string    `json:"email"`
	AssignedCourse string    `json:"assignedCourse"`
	LastLogin      time.Time `json:"lastLogin"`
}

type Assignment struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Course      string    `json:"course"`
	DueDate     *Date     `json:"dueDate,omitempty"`
	PostedBy    string    `json:"postedBy"`
	PostedAt    time.Time `json:"postedAt"`
}

type ScheduleEntry struct {
	ID         string    `json:"id,omitempty"`
	Course     string    `json:"course"`
	Location   string    `json:"location"`
	Time       string    `json:"time"`
	Day        string    `json:"day"`
	Instructor string    `json:"instructor"`
	PostedAt   time.Time `json:"postedAt"`
}

type AssignmentForm struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Course      string `json:"course"`
}

type ScheduleForm struct {
	Location   string `json:"location"`
	Time       string `json:"time"`
	Day        string `json:"day"`
	Course     string `json:"course"`
	Instructor string `json:"instructor"`
}

// DefaultScheduleDay is the day a schedule form starts on and returns to
// after a successful submission.
const DefaultScheduleDay = "Monday"

var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

func Weekdays() []string {
	out := make([]string, len(weekdays))
	copy(out, weekdays)
	return out
}

func ValidWeekday(day string) bool {
	for _, d := range weekdays {
		if d == day {
			return true
		}
	}
	return false
}
