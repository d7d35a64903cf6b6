package model

type EnrollmentStatus string

const (
	EnrollmentAssigned  EnrollmentStatus = "assigned"
	EnrollmentStarted   EnrollmentStatus = "started"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

// Enrollment 学生与考试实例的分配记录，(exam_id, student_id) 唯一
type Enrollment struct {
	BaseModel
	ExamID      string           `gorm:"type:varchar(36);uniqueIndex:idx_exam_student;not null" json:"examId"`
	StudentID   uint             `gorm:"uniqueIndex:idx_exam_student;not null" json:"studentId"`
	Status      EnrollmentStatus `gorm:"size:20;default:'assigned'" json:"status"`
	Attempts    int              `gorm:"default:0" json:"attempts"`
	MaxAttempts int              `gorm:"default:1" json:"maxAttempts"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}
