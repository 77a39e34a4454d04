package models

import "time"

// Task defaults
const (
	DefaultTaskTitle    = "Untitled task"
	DefaultTaskPriority = "normal"
	TaskStatusOpen      = "open"
)

// Task is a planner entry
type Task struct {
	ID        string     `json:"id" db:"id"`
	Title     string     `json:"title" db:"title"`
	DueAt     *time.Time `json:"dueAt" db:"due_at"`
	Priority  string     `json:"priority" db:"priority"`
	Status    string     `json:"status" db:"status"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for the Task model
func (Task) TableName() string {
	return "tasks"
}

// NewTask creates an open task, applying the title and priority defaults
func NewTask(title string, dueAt *time.Time, priority string) *Task {
	if title == "" {
		title = DefaultTaskTitle
	}
	if priority == "" {
		priority = DefaultTaskPriority
	}
	now := time.Now().UTC()
	return &Task{
		ID:        NewID(PrefixTask),
		Title:     title,
		DueAt:     dueAt,
		Priority:  priority,
		Status:    TaskStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TaskPatch holds the fields a PATCH may change. Nil fields are kept.
type TaskPatch struct {
	Title    *string    `json:"title" validate:"omitempty,max=500"`
	DueAt    *time.Time `json:"dueAt"`
	Priority *string    `json:"priority" validate:"omitempty,max=32"`
	Status   *string    `json:"status" validate:"omitempty,max=32"`
}

// Apply copies the set fields onto t
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.DueAt != nil {
		t.DueAt = p.DueAt
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
}
