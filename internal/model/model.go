package model

import (
	"context"
	"time"
)

// Specialization scopes which questions are eligible for an exam.
type Specialization string

const (
	SpecSoftware Specialization = "software"
	SpecNetworks Specialization = "networks"
	SpecAI       Specialization = "ai"
	SpecGeneral  Specialization = "general"
)

// Valid reports whether s is one of the known specializations.
func (s Specialization) Valid() bool {
	switch s {
	case SpecSoftware, SpecNetworks, SpecAI, SpecGeneral:
		return true
	}
	return false
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ExamStatus represents the lifecycle state of an exam.
// The transition is ongoing -> completed, one-way. The expired value
// exists for parity with the data model but nothing in this service
// drives it; expiry belongs to an external scheduler.
type ExamStatus string

const (
	StatusOngoing   ExamStatus = "ongoing"
	StatusCompleted ExamStatus = "completed"
	StatusExpired   ExamStatus = "expired"
)

// ExamType distinguishes bank-sampled exams from AI-generated ones.
type ExamType string

const (
	ExamTypeNormal ExamType = "normal"
	ExamTypeAI     ExamType = "ai"
)

// AttachmentType classifies an optional question attachment.
type AttachmentType string

const (
	AttachmentImage   AttachmentType = "image"
	AttachmentCode    AttachmentType = "code"
	AttachmentText    AttachmentType = "text"
	AttachmentDiagram AttachmentType = "diagram"
)

// Attachment is supplementary content shown with a question.
type Attachment struct {
	Type    AttachmentType `json:"type"`
	Content string         `json:"content"`
}

// Option is one answer choice of a question. The stored order of a
// question's options is the canonical index space used for scoring.
type Option struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"-"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

// Question is a bank question. At most one option is marked correct;
// zero correct options means the question scores against index -1.
type Question struct {
	ID             int64          `json:"id"`
	Text           string         `json:"text"`
	Specialization Specialization `json:"specialization"`
	Year           string         `json:"year"`
	Marks          int            `json:"marks"`
	Difficulty     Difficulty     `json:"difficulty"`
	Options        []Option       `json:"options"`
	Attachment     *Attachment    `json:"attachment,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// CorrectIndex returns the 0-based position of the correct option in
// stored order, or -1 when no option is marked correct.
func (q Question) CorrectIndex() int {
	for i, o := range q.Options {
		if o.IsCorrect {
			return i
		}
	}
	return -1
}

// AIModel is an AI model descriptor. The credential never leaves the
// server: APIKey is excluded from every JSON representation.
type AIModel struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	APIKey          string    `json:"-"`
	ModelIdentifier string    `json:"model_identifier"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// Exam is a user's exam instance. The question snapshot is frozen at
// assembly; only user_answer/is_correct per question and the aggregate
// fields here are written afterwards, exactly once, at submission.
type Exam struct {
	ID             int64          `json:"id"`
	UserID         int64          `json:"-"`
	Title          string         `json:"title"`
	Specialization Specialization `json:"specialization"`
	ExamType       ExamType       `json:"exam_type"`
	AIModelID      *int64         `json:"-"`
	QuestionCount  int            `json:"question_count"`
	TimeLimit      int            `json:"time_limit"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        *time.Time     `json:"end_time"`
	Status         ExamStatus     `json:"status"`
	Score          *int           `json:"score"`
	CorrectAnswers *int           `json:"correct_answers"`
	Percentage     *float64       `json:"percentage"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ExamQuestion binds an exam to a question at a fixed position. Order
// is 0-based, contiguous and unique per exam; it defines the index the
// submitted answer vector must align to.
type ExamQuestion struct {
	ID         int64 `json:"id"`
	ExamID     int64 `json:"-"`
	QuestionID int64 `json:"-"`
	Order      int   `json:"order"`
	UserAnswer *int  `json:"user_answer"`
	IsCorrect  *bool `json:"is_correct"`
}

// ExamQuestionView pairs a snapshot row with its full question.
type ExamQuestionView struct {
	ExamQuestion
	Question Question `json:"question"`
}

// ExamView is the exam representation returned to clients: the exam,
// its ordered question snapshot, and the linked AI model if any.
type ExamView struct {
	Exam
	Questions []ExamQuestionView `json:"questions"`
	AIModel   *AIModel           `json:"ai_model,omitempty"`
}

// User is a platform account. Authentication here is deliberately
// minimal: exams need an owner, nothing more.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession is an opaque bearer token with an expiry.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// QuestionImport is used for loading questions from JSON. Options are
// given as plain strings; CorrectOptionIndex marks which one is correct.
type QuestionImport struct {
	Text               string         `json:"text"`
	Specialization     Specialization `json:"specialization"`
	Year               string         `json:"year"`
	Marks              int            `json:"marks"`
	Difficulty         Difficulty     `json:"difficulty"`
	OptionsText        []string       `json:"options_text"`
	CorrectOptionIndex int            `json:"correct_option_index"`
	Attachment         *Attachment    `json:"attachment,omitempty"`
}
