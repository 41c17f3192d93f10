package model

import "time"

// Raw is an untyped, unvalidated record exactly as a Compass client returned
// it. Raw values become Event or User only by passing through internal/parser.
type Raw = map[string]any

// Default "__type" discriminators sent by Compass.
const (
	TypeEvent    = "CalendarTransport:http://jdlf.com.au/ns/data/calendar"
	TypeLocation = "CalendarEventLocation:http://jdlf.com.au/ns/data/calendar"
	TypeManager  = "CalendarEventManager:http://jdlf.com.au/ns/data/calendar"
	TypeUser     = "UserDetailsBlob"
)

// Location is one structured location attached to a calendar event.
type Location struct {
	Type                 string  `json:"type"`
	CoveringLocationID   *int    `json:"covering_location_id,omitempty"`
	CoveringLocationName *string `json:"covering_location_name,omitempty"`
	LocationID           int     `json:"location_id"`
	LocationName         *string `json:"location_name,omitempty"`
}

// Manager is a staff member associated with a calendar event. The covering
// fields are set when a substitute runs the event.
type Manager struct {
	Type                     string  `json:"type"`
	CoveringImportIdentifier *string `json:"covering_import_identifier,omitempty"`
	CoveringUserID           *int    `json:"covering_user_id,omitempty"`
	ManagerImportIdentifier  string  `json:"manager_import_identifier"`
	ManagerUserID            int     `json:"manager_user_id"`
}

// Event is a validated Compass calendar entry. Values are produced by the
// parser and are not mutated afterwards.
//
// Optional fields are pointers or nil slices; nil means the source omitted
// the field or sent null.
type Event struct {
	Type string `json:"type"`

	// InstanceID distinguishes occurrences of a recurring activity.
	ActivityID               int     `json:"activity_id"`
	ActivityImportIdentifier *string `json:"activity_import_identifier,omitempty"`
	ActivityType             int     `json:"activity_type"`
	InstanceID               string  `json:"instance_id"`
	GUID                     string  `json:"guid"`
	CalendarID               int     `json:"calendar_id"`

	Start            time.Time  `json:"start"`
	Finish           time.Time  `json:"finish"`
	AllDay           bool       `json:"all_day"`
	IsRecurring      bool       `json:"is_recurring"`
	RecurringStart   *time.Time `json:"recurring_start,omitempty"`
	RecurringFinish  *time.Time `json:"recurring_finish,omitempty"`
	RepeatDays       *string    `json:"repeat_days,omitempty"`
	RepeatForever    bool       `json:"repeat_forever"`
	RepeatFrequency  int        `json:"repeat_frequency"`
	RepeatUntil      *time.Time `json:"repeat_until,omitempty"`
	TeachingDaysOnly bool       `json:"teaching_days_only"`

	Title                string     `json:"title"`
	LongTitle            string     `json:"long_title"`
	LongTitleWithoutTime string     `json:"long_title_without_time"`
	Description          string     `json:"description"`
	Comment              *string    `json:"comment,omitempty"`
	Location             *string    `json:"location,omitempty"`
	Locations            []Location `json:"locations,omitempty"`
	Period               *string    `json:"period,omitempty"`
	SessionName          *string    `json:"session_name,omitempty"`
	SubjectID            *int       `json:"subject_id,omitempty"`
	SubjectLongName      *string    `json:"subject_long_name,omitempty"`
	CategoryIDs          *string    `json:"category_ids,omitempty"`

	ManagerID       int       `json:"manager_id"`
	Managers        []Manager `json:"managers,omitempty"`
	AttendeeUserID  int       `json:"attendee_user_id"`
	TargetStudentID int       `json:"target_student_id"`

	AttendanceMode         int  `json:"attendance_mode"`
	EventSetupStatus       *int `json:"event_setup_status,omitempty"`
	InClassStatus          *int `json:"in_class_status,omitempty"`
	LearningTaskActivityID *int `json:"learning_task_activity_id,omitempty"`
	LearningTaskID         *int `json:"learning_task_id,omitempty"`
	LessonPlanConfigured   bool `json:"lesson_plan_configured"`
	MinutesMeetingID       *int `json:"minutes_meeting_id,omitempty"`
	RollMarked             bool `json:"roll_marked"`
	RunningStatus          int  `json:"running_status"`
	UnavailablePd          *int `json:"unavailable_pd,omitempty"`

	// Passed through unmodified for UI rendering.
	BackgroundColor string  `json:"background_color"`
	TextColor       *string `json:"text_color,omitempty"`
}

// User is the validated profile of a Compass account. Name fields are kept
// exactly as sent, even where one could be derived from another.
type User struct {
	Type string `json:"type"`

	UserID              int     `json:"user_id"`
	UserDisplayCode     string  `json:"user_display_code"`
	UserCompassPersonID string  `json:"user_compass_person_id"`
	UserSussiID         string  `json:"user_sussi_id"`
	UserVSN             *string `json:"user_vsn,omitempty"`
	UserACTStudentID    *string `json:"user_act_student_id,omitempty"`

	UserFirstName           string  `json:"user_first_name"`
	UserLastName            string  `json:"user_last_name"`
	UserPreferredName       string  `json:"user_preferred_name"`
	UserPreferredLastName   string  `json:"user_preferred_last_name"`
	UserFullName            string  `json:"user_full_name"`
	UserReportName          string  `json:"user_report_name"`
	UserReportPrefFirstLast string  `json:"user_report_pref_first_last"`
	UserGenderPronouns      *string `json:"user_gender_pronouns,omitempty"`

	UserEmail           *string `json:"user_email,omitempty"`
	UserYearLevel       *string `json:"user_year_level,omitempty"`
	UserYearLevelID     *int    `json:"user_year_level_id,omitempty"`
	UserFormGroup       *string `json:"user_form_group,omitempty"`
	ContextualFormGroup string  `json:"contextual_form_group"`
	UserHouse           *string `json:"user_house,omitempty"`
	UserRole            int     `json:"user_role"`
	UserRoleInSchool    *string `json:"user_role_in_school,omitempty"`
	UserStatus          int     `json:"user_status"`
	UserSchoolID        string  `json:"user_school_id"`
	UserSchoolURL       string  `json:"user_school_url"`
	UserPhoneExtension  *string `json:"user_phone_extension,omitempty"`

	Age         *int       `json:"age,omitempty"`
	Birthday    *time.Time `json:"birthday,omitempty"`
	DateOfDeath *time.Time `json:"date_of_death,omitempty"`
	Gender      *string    `json:"gender,omitempty"`
	UserSex     *string    `json:"user_sex,omitempty"`

	UserPhotoPath             string `json:"user_photo_path"`
	UserSquarePhotoPath       string `json:"user_square_photo_path"`
	UserConfirmationPhotoPath string `json:"user_confirmation_photo_path"`

	ChroniclePinnedCount   int     `json:"chronicle_pinned_count"`
	HasEmailRestriction    bool    `json:"has_email_restriction"`
	IsBirthday             bool    `json:"is_birthday"`
	UserAccessRestrictions *string `json:"user_access_restrictions,omitempty"`
	UserDetails            *string `json:"user_details,omitempty"`
	UserFlags              []any   `json:"user_flags"`
	UserTimeLinePeriods    []any   `json:"user_time_line_periods"`
}

// Role codes seen in User.UserRole.
const (
	RoleStudent = 1
	RoleStaff   = 2
	RoleParent  = 4
)
