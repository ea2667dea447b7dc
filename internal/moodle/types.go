package moodle

// Wire types for the webservice functions this client calls. Field tags
// follow Moodle's lowercase JSON keys; only the fields the fetcher reads
// are declared.

// SiteInfo is the reply to core_webservice_get_site_info.
type SiteInfo struct {
	UserID   int64  `json:"userid"`
	FullName string `json:"fullname"`
	SiteName string `json:"sitename"`
	Release  string `json:"release"`
}

// CourseSummary is one entry of core_enrol_get_users_courses.
type CourseSummary struct {
	ID        int64  `json:"id"`
	FullName  string `json:"fullname"`
	ShortName string `json:"shortname"`
}

// Section is one entry of core_course_get_contents.
type Section struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Summary string   `json:"summary"`
	Modules []Module `json:"modules"`
}

// Module is a course module inside a Section.
type Module struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ModName     string    `json:"modname"`
	Description string    `json:"description"`
	Contents    []Content `json:"contents"`
}

// Content is one file or link attached to a module, assignment or
// database entry.
type Content struct {
	Type         string `json:"type"`
	Filename     string `json:"filename"`
	Filepath     string `json:"filepath"`
	Filesize     int64  `json:"filesize"`
	FileURL      string `json:"fileurl"`
	TimeModified int64  `json:"timemodified"`
}

// Assignment is one entry of mod_assign_get_assignments.
type Assignment struct {
	ID               int64     `json:"id"`
	CMID             int64     `json:"cmid"`
	Name             string    `json:"name"`
	Intro            string    `json:"intro"`
	IntroAttachments []Content `json:"introattachments"`
}

// Submission is one entry of mod_assign_get_submissions.
type Submission struct {
	ID      int64              `json:"id"`
	UserID  int64              `json:"userid"`
	Status  string             `json:"status"`
	Plugins []SubmissionPlugin `json:"plugins"`
}

// SubmissionPlugin carries one plugin's file areas within a Submission.
type SubmissionPlugin struct {
	Type      string     `json:"type"`
	FileAreas []FileArea `json:"fileareas"`
}

// FileArea groups a submission plugin's files.
type FileArea struct {
	Area  string    `json:"area"`
	Files []Content `json:"files"`
}

// Database is one entry of mod_data_get_databases_by_courses.
type Database struct {
	ID           int64  `json:"id"`
	CourseModule int64  `json:"coursemodule"`
	CourseID     int64  `json:"course"`
	Name         string `json:"name"`
	Intro        string `json:"intro"`
}

// DatabaseEntry is one entry of mod_data_get_entries.
type DatabaseEntry struct {
	ID       int64          `json:"id"`
	Contents []EntryContent `json:"contents"`
}

// EntryContent is one field value of a DatabaseEntry.
type EntryContent struct {
	FieldID int64     `json:"fieldid"`
	Content string    `json:"content"`
	Files   []Content `json:"files"`
}

// wsError is Moodle's in-band failure envelope: errors arrive as a JSON
// object inside an HTTP 200.
type wsError struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

// tokenResponse is the reply of login/token.php.
type tokenResponse struct {
	Token     string `json:"token"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorcode"`
}

// Response wrappers for functions that nest their payload.

type assignmentsResponse struct {
	Courses []struct {
		ID          int64        `json:"id"`
		Assignments []Assignment `json:"assignments"`
	} `json:"courses"`
}

type submissionsResponse struct {
	Assignments []struct {
		AssignmentID int64        `json:"assignmentid"`
		Submissions  []Submission `json:"submissions"`
	} `json:"assignments"`
}

type databasesResponse struct {
	Databases []Database `json:"databases"`
}

type entriesResponse struct {
	Entries []DatabaseEntry `json:"entries"`
}
