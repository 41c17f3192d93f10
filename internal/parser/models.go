package parser

import (
	"time"

	"bellweaver/internal/model"
)

// Model binds a target type to its field schema. Use EventModel or
// UserModel; the zero value is not usable.
type Model[T any] struct {
	Name   string
	schema *schema
	decode func(*reader) T
	loc    *time.Location
}

// In returns a copy of m that interprets timestamps without an offset in
// loc instead of UTC.
func (m Model[T]) In(loc *time.Location) Model[T] {
	m.loc = loc
	return m
}

var locationSchema = newSchema(
	field{"__type", "type"},
	field{"coveringLocationId", "covering_location_id"},
	field{"coveringLocationName", "covering_location_name"},
	field{"locationId", "location_id"},
	field{"locationName", "location_name"},
)

func decodeLocation(r *reader) model.Location {
	return model.Location{
		Type:                 r.strOr("type", model.TypeLocation),
		CoveringLocationID:   r.optInt("covering_location_id"),
		CoveringLocationName: r.optStr("covering_location_name"),
		LocationID:           r.integer("location_id"),
		LocationName:         r.optStr("location_name"),
	}
}

var managerSchema = newSchema(
	field{"__type", "type"},
	field{"coveringImportIdentifier", "covering_import_identifier"},
	field{"coveringUserId", "covering_user_id"},
	field{"managerImportIdentifier", "manager_import_identifier"},
	field{"managerUserId", "manager_user_id"},
)

func decodeManager(r *reader) model.Manager {
	return model.Manager{
		Type:                     r.strOr("type", model.TypeManager),
		CoveringImportIdentifier: r.optStr("covering_import_identifier"),
		CoveringUserID:           r.optInt("covering_user_id"),
		ManagerImportIdentifier:  r.str("manager_import_identifier"),
		ManagerUserID:            r.integer("manager_user_id"),
	}
}

// EventModel validates Compass calendar events.
var EventModel = Model[model.Event]{
	Name: "Event",
	schema: newSchema(
		field{"__type", "type"},
		field{"activityId", "activity_id"},
		field{"activityImportIdentifier", "activity_import_identifier"},
		field{"activityType", "activity_type"},
		field{"allDay", "all_day"},
		field{"attendanceMode", "attendance_mode"},
		field{"attendeeUserId", "attendee_user_id"},
		field{"backgroundColor", "background_color"},
		field{"calendarId", "calendar_id"},
		field{"categoryIds", "category_ids"},
		field{"comment", "comment"},
		field{"description", "description"},
		field{"eventSetupStatus", "event_setup_status"},
		field{"finish", "finish"},
		field{"guid", "guid"},
		field{"inClassStatus", "in_class_status"},
		field{"instanceId", "instance_id"},
		field{"isRecurring", "is_recurring"},
		field{"learningTaskActivityId", "learning_task_activity_id"},
		field{"learningTaskId", "learning_task_id"},
		field{"lessonPlanConfigured", "lesson_plan_configured"},
		field{"location", "location"},
		field{"locations", "locations"},
		field{"longTitle", "long_title"},
		field{"longTitleWithoutTime", "long_title_without_time"},
		field{"managerId", "manager_id"},
		field{"managers", "managers"},
		field{"minutesMeetingId", "minutes_meeting_id"},
		field{"period", "period"},
		field{"recurringFinish", "recurring_finish"},
		field{"recurringStart", "recurring_start"},
		field{"repeatDays", "repeat_days"},
		field{"repeatForever", "repeat_forever"},
		field{"repeatFrequency", "repeat_frequency"},
		field{"repeatUntil", "repeat_until"},
		field{"rollMarked", "roll_marked"},
		field{"runningStatus", "running_status"},
		field{"sessionName", "session_name"},
		field{"start", "start"},
		field{"subjectId", "subject_id"},
		field{"subjectLongName", "subject_long_name"},
		field{"targetStudentId", "target_student_id"},
		field{"teachingDaysOnly", "teaching_days_only"},
		field{"textColor", "text_color"},
		field{"title", "title"},
		field{"unavailablePd", "unavailable_pd"},
	),
	decode: decodeEvent,
}

func decodeEvent(r *reader) model.Event {
	return model.Event{
		Type: r.strOr("type", model.TypeEvent),

		ActivityID:               r.integer("activity_id"),
		ActivityImportIdentifier: r.optStr("activity_import_identifier"),
		ActivityType:             r.integer("activity_type"),
		InstanceID:               r.str("instance_id"),
		GUID:                     r.str("guid"),
		CalendarID:               r.integer("calendar_id"),

		Start:            r.timestamp("start"),
		Finish:           r.timestamp("finish"),
		AllDay:           r.boolean("all_day"),
		IsRecurring:      r.boolean("is_recurring"),
		RecurringStart:   r.optTime("recurring_start"),
		RecurringFinish:  r.optTime("recurring_finish"),
		RepeatDays:       r.optStr("repeat_days"),
		RepeatForever:    r.boolean("repeat_forever"),
		RepeatFrequency:  r.integer("repeat_frequency"),
		RepeatUntil:      r.optTime("repeat_until"),
		TeachingDaysOnly: r.boolean("teaching_days_only"),

		Title:                r.str("title"),
		LongTitle:            r.str("long_title"),
		LongTitleWithoutTime: r.str("long_title_without_time"),
		Description:          r.str("description"),
		Comment:              r.optStr("comment"),
		Location:             r.optStr("location"),
		Locations:            objects(r, "locations", locationSchema, decodeLocation),
		Period:               r.optStr("period"),
		SessionName:          r.optStr("session_name"),
		SubjectID:            r.optInt("subject_id"),
		SubjectLongName:      r.optStr("subject_long_name"),
		CategoryIDs:          r.optStr("category_ids"),

		ManagerID:       r.integer("manager_id"),
		Managers:        objects(r, "managers", managerSchema, decodeManager),
		AttendeeUserID:  r.integer("attendee_user_id"),
		TargetStudentID: r.integer("target_student_id"),

		AttendanceMode:         r.integer("attendance_mode"),
		EventSetupStatus:       r.optInt("event_setup_status"),
		InClassStatus:          r.optInt("in_class_status"),
		LearningTaskActivityID: r.optInt("learning_task_activity_id"),
		LearningTaskID:         r.optInt("learning_task_id"),
		LessonPlanConfigured:   r.boolean("lesson_plan_configured"),
		MinutesMeetingID:       r.optInt("minutes_meeting_id"),
		RollMarked:             r.boolean("roll_marked"),
		RunningStatus:          r.integer("running_status"),
		UnavailablePd:          r.optInt("unavailable_pd"),

		BackgroundColor: r.str("background_color"),
		TextColor:       r.optStr("text_color"),
	}
}

// UserModel validates Compass user detail blobs.
var UserModel = Model[model.User]{
	Name: "User",
	schema: newSchema(
		field{"__type", "type"},
		field{"age", "age"},
		field{"birthday", "birthday"},
		field{"chroniclePinnedCount", "chronicle_pinned_count"},
		field{"contextualFormGroup", "contextual_form_group"},
		field{"dateOfDeath", "date_of_death"},
		field{"gender", "gender"},
		field{"hasEmailRestriction", "has_email_restriction"},
		field{"isBirthday", "is_birthday"},
		field{"userACTStudentID", "user_act_student_id"},
		field{"userAccessRestrictions", "user_access_restrictions"},
		field{"userCompassPersonId", "user_compass_person_id"},
		field{"userConfirmationPhotoPath", "user_confirmation_photo_path"},
		field{"userDetails", "user_details"},
		field{"userDisplayCode", "user_display_code"},
		field{"userEmail", "user_email"},
		field{"userFirstName", "user_first_name"},
		field{"userFlags", "user_flags"},
		field{"userFormGroup", "user_form_group"},
		field{"userFullName", "user_full_name"},
		field{"userGenderPronouns", "user_gender_pronouns"},
		field{"userHouse", "user_house"},
		field{"userId", "user_id"},
		field{"userLastName", "user_last_name"},
		field{"userPhoneExtension", "user_phone_extension"},
		field{"userPhotoPath", "user_photo_path"},
		field{"userPreferredLastName", "user_preferred_last_name"},
		field{"userPreferredName", "user_preferred_name"},
		field{"userReportName", "user_report_name"},
		field{"userReportPrefFirstLast", "user_report_pref_first_last"},
		field{"userRole", "user_role"},
		field{"userRoleInSchool", "user_role_in_school"},
		field{"userSchoolId", "user_school_id"},
		field{"userSchoolURL", "user_school_url"},
		field{"userSex", "user_sex"},
		field{"userSquarePhotoPath", "user_square_photo_path"},
		field{"userStatus", "user_status"},
		field{"userSussiID", "user_sussi_id"},
		field{"userTimeLinePeriods", "user_time_line_periods"},
		field{"userVSN", "user_vsn"},
		field{"userYearLevel", "user_year_level"},
		field{"userYearLevelId", "user_year_level_id"},
	),
	decode: decodeUser,
}

func decodeUser(r *reader) model.User {
	return model.User{
		Type: r.strOr("type", model.TypeUser),

		UserID:              r.integer("user_id"),
		UserDisplayCode:     r.str("user_display_code"),
		UserCompassPersonID: r.str("user_compass_person_id"),
		UserSussiID:         r.str("user_sussi_id"),
		UserVSN:             r.optStr("user_vsn"),
		UserACTStudentID:    r.optStr("user_act_student_id"),

		UserFirstName:           r.str("user_first_name"),
		UserLastName:            r.str("user_last_name"),
		UserPreferredName:       r.str("user_preferred_name"),
		UserPreferredLastName:   r.str("user_preferred_last_name"),
		UserFullName:            r.str("user_full_name"),
		UserReportName:          r.str("user_report_name"),
		UserReportPrefFirstLast: r.str("user_report_pref_first_last"),
		UserGenderPronouns:      r.optStr("user_gender_pronouns"),

		UserEmail:           r.optStr("user_email"),
		UserYearLevel:       r.optStr("user_year_level"),
		UserYearLevelID:     r.optInt("user_year_level_id"),
		UserFormGroup:       r.optStr("user_form_group"),
		ContextualFormGroup: r.str("contextual_form_group"),
		UserHouse:           r.optStr("user_house"),
		UserRole:            r.integer("user_role"),
		UserRoleInSchool:    r.optStr("user_role_in_school"),
		UserStatus:          r.integer("user_status"),
		UserSchoolID:        r.str("user_school_id"),
		UserSchoolURL:       r.str("user_school_url"),
		UserPhoneExtension:  r.optStr("user_phone_extension"),

		Age:         r.optInt("age"),
		Birthday:    r.optTime("birthday"),
		DateOfDeath: r.optTime("date_of_death"),
		Gender:      r.optStr("gender"),
		UserSex:     r.optStr("user_sex"),

		UserPhotoPath:             r.str("user_photo_path"),
		UserSquarePhotoPath:       r.str("user_square_photo_path"),
		UserConfirmationPhotoPath: r.str("user_confirmation_photo_path"),

		ChroniclePinnedCount:   r.integer("chronicle_pinned_count"),
		HasEmailRestriction:    r.boolean("has_email_restriction"),
		IsBirthday:             r.boolean("is_birthday"),
		UserAccessRestrictions: r.optStr("user_access_restrictions"),
		UserDetails:            r.optStr("user_details"),
		UserFlags:              r.list("user_flags"),
		UserTimeLinePeriods:    r.list("user_time_line_periods"),
	}
}
