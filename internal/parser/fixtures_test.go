package parser

import "fmt"

func eventRaw(id int, start, finish string) map[string]any {
	return map[string]any{
		"__type":                   "CalendarTransport:http://jdlf.com.au/ns/data/calendar",
		"activityId":               float64(id),
		"activityImportIdentifier": nil,
		"activityType":             float64(1),
		"allDay":                   false,
		"attendanceMode":           float64(0),
		"attendeeUserId":           float64(67890),
		"backgroundColor":          "#4CAF50",
		"calendarId":               float64(1),
		"categoryIds":              nil,
		"comment":                  nil,
		"description":              "Year 6 Mathematics",
		"eventSetupStatus":         nil,
		"finish":                   finish,
		"guid":                     fmt.Sprintf("guid-%d", id),
		"inClassStatus":            nil,
		"instanceId":               fmt.Sprintf("inst-%d", id),
		"isRecurring":              false,
		"lessonPlanConfigured":     false,
		"location":                 "Room 101",
		"locations":                nil,
		"longTitle":                "9:00: Mathematics - Year 6",
		"longTitleWithoutTime":     "Mathematics - Year 6",
		"managerId":                float64(11111),
		"managers":                 nil,
		"period":                   "1",
		"repeatForever":            false,
		"repeatFrequency":          float64(0),
		"rollMarked":               false,
		"runningStatus":            float64(0),
		"start":                    start,
		"subjectId":                float64(101),
		"subjectLongName":          "Mathematics",
		"targetStudentId":          float64(67890),
		"teachingDaysOnly":         true,
		"title":                    "Mathematics",
	}
}

func userRaw() map[string]any {
	return map[string]any{
		"__type":                    "UserDetailsBlob",
		"age":                       float64(10),
		"birthday":                  "2014-05-15T00:00:00",
		"chroniclePinnedCount":      float64(0),
		"contextualFormGroup":       "6A",
		"hasEmailRestriction":       false,
		"isBirthday":                false,
		"userCompassPersonId":       "b5c6d7e8-0000-4000-8000-000000000001",
		"userConfirmationPhotoPath": "/photos/confirm.jpg",
		"userDisplayCode":           "SMI0001",
		"userFirstName":             "Jane",
		"userFullName":              "Jane Smith",
		"userId":                    float64(12345),
		"userLastName":              "Smith",
		"userPhotoPath":             "/photos/1.jpg",
		"userPreferredLastName":     "Smith",
		"userPreferredName":         "Jane",
		"userReportName":            "Smith, Jane",
		"userReportPrefFirstLast":   "Jane Smith",
		"userRole":                  float64(1),
		"userSchoolId":              "SCH001",
		"userSchoolURL":             "https://school.compass.education",
		"userSquarePhotoPath":       "/photos/1_square.jpg",
		"userStatus":                float64(1),
		"userSussiID":               "SUSSI001",
		"userYearLevel":             "Year 6",
	}
}
