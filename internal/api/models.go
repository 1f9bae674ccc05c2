package api

import (
	"time"

	"github.com/repubhub/republic-api/internal/domain"
)

// Common request/response structures

// CreateTaskRequest defines the payload for creating a task.
type CreateTaskRequest struct {
	RepublicID         string     `json:"republic_id"         validate:"required,uuid"`
	Title              string     `json:"title"               validate:"required,max=255"`
	Description        string     `json:"description"         validate:"max=4000"`
	Category           string     `json:"category"            validate:"max=100"`
	AssignedUserIDs    []string   `json:"assigned_user_ids"   validate:"dive,uuid"`
	DueDate            *time.Time `json:"due_date"`
	IsRecurring        bool       `json:"is_recurring"`
	RecurrenceType     string     `json:"recurrence_type"     validate:"omitempty,oneof=daily weekly monthly yearly"`
	RecurrenceInterval int        `json:"recurrence_interval" validate:"omitempty,gte=1"`
	RecurrenceEndDate  *time.Time `json:"recurrence_end_date"`
}

// UpdateTaskRequest defines the payload for partially updating a task.
// Absent fields are left untouched.
type UpdateTaskRequest struct {
	Title              *string    `json:"title"               validate:"omitempty,max=255"`
	Description        *string    `json:"description"         validate:"omitempty,max=4000"`
	Category           *string    `json:"category"            validate:"omitempty,max=100"`
	DueDate            *time.Time `json:"due_date"`
	Status             *string    `json:"status"              validate:"omitempty,oneof=pending in_progress"`
	IsRecurring        *bool      `json:"is_recurring"`
	RecurrenceType     *string    `json:"recurrence_type"     validate:"omitempty,oneof=daily weekly monthly yearly"`
	RecurrenceInterval *int       `json:"recurrence_interval" validate:"omitempty,gte=1"`
	RecurrenceEndDate  *time.Time `json:"recurrence_end_date"`
}

// AssignUserRequest defines the payload for assigning a member to a task.
type AssignUserRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// TaskResponse represents the response data for a task.
type TaskResponse struct {
	ID                 string     `json:"id"`
	RepublicID         string     `json:"republic_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	Category           string     `json:"category,omitempty"`
	AssignedUserIDs    []string   `json:"assigned_user_ids"`
	Status             string     `json:"status"`
	DueDate            *time.Time `json:"due_date,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	IsRecurring        bool       `json:"is_recurring"`
	RecurrenceType     string     `json:"recurrence_type,omitempty"`
	RecurrenceInterval int        `json:"recurrence_interval,omitempty"`
	RecurrenceEndDate  *time.Time `json:"recurrence_end_date,omitempty"`
	ParentTaskID       *string    `json:"parent_task_id,omitempty"`
}

// TaskChangeResponse is the response for lifecycle and assignment endpoints.
// Changed reports whether the request actually altered the task; a repeated
// call on an already-transitioned task returns the task unchanged with
// Changed false.
type TaskChangeResponse struct {
	Task    TaskResponse `json:"task"`
	Changed bool         `json:"changed"`
}

// ListTasksResponse is the paginated response for task listings.
type ListTasksResponse struct {
	Tasks    []TaskResponse `json:"tasks"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// taskToResponse converts a domain.Task to a TaskResponse.
func taskToResponse(task *domain.Task) TaskResponse {
	assignees := make([]string, len(task.AssignedUserIDs))
	for i, id := range task.AssignedUserIDs {
		assignees[i] = id.String()
	}

	resp := TaskResponse{
		ID:                 task.ID.String(),
		RepublicID:         task.RepublicID.String(),
		Title:              task.Title,
		Description:        task.Description,
		Category:           task.Category,
		AssignedUserIDs:    assignees,
		Status:             string(task.Status),
		DueDate:            task.DueDate,
		CompletedAt:        task.CompletedAt,
		CreatedAt:          task.CreatedAt,
		UpdatedAt:          task.UpdatedAt,
		IsRecurring:        task.IsRecurring,
		RecurrenceType:     string(task.RecurrenceType),
		RecurrenceInterval: task.RecurrenceInterval,
		RecurrenceEndDate:  task.RecurrenceEndDate,
	}
	if task.ParentTaskID != nil {
		parentID := task.ParentTaskID.String()
		resp.ParentTaskID = &parentID
	}
	return resp
}

func tasksToResponses(tasks []*domain.Task) []TaskResponse {
	responses := make([]TaskResponse, len(tasks))
	for i, task := range tasks {
		responses[i] = taskToResponse(task)
	}
	return responses
}
