package dto

import "time"

// OpenMaterial is a published material the student has not submitted yet.
type OpenMaterial struct {
	ID        uint       `json:"id"`
	ClassID   uint       `json:"class_id"`
	ClassName string     `json:"class_name"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	DueAt     *time.Time `json:"due_at"`
}

// StudentDashboardResponse aggregates what a student needs on sign-in.
type StudentDashboardResponse struct {
	Classes       []ClassResponse      `json:"classes"`
	OpenMaterials []OpenMaterial       `json:"open_materials"`
	RecentGrades  []SubmissionResponse `json:"recent_grades"`
	AverageScore  *float64             `json:"average_score"`
	GeneratedAt   time.Time            `json:"generated_at"`
	CacheHit      bool                 `json:"cache_hit"`
}

// TeacherDashboardResponse aggregates a teacher's pending work.
type TeacherDashboardResponse struct {
	Classes             []ClassResponse      `json:"classes"`
	PendingEnrollments  int64                `json:"pending_enrollments"`
	UngradedSubmissions int64                `json:"ungraded_submissions"`
	RecentSubmissions   []SubmissionResponse `json:"recent_submissions"`
}

// AdminSummaryResponse is the system-wide overview.
type AdminSummaryResponse struct {
	UsersByRole         map[string]int64 `json:"users_by_role"`
	Classes             int64            `json:"classes"`
	EnrollmentsByStatus map[string]int64 `json:"enrollments_by_status"`
	Materials           int64            `json:"materials"`
	Submissions         int64            `json:"submissions"`
	UngradedSubmissions int64            `json:"ungraded_submissions"`
	Messages            int64            `json:"messages"`
}
