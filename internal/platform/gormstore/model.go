package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskflow-api/internal/domain"
)

// taskModel is the GORM mapping of the tasks table.
type taskModel struct {
	ID          string     `gorm:"primaryKey;size:36"`
	Title       string     `gorm:"size:200;not null"`
	Description string     `gorm:"size:2000;not null;default:''"`
	Status      string     `gorm:"size:20;not null;index"`
	Priority    string     `gorm:"size:20;not null;index"`
	AssignedTo  *string    `gorm:"size:100;index"`
	CreatedBy   *string    `gorm:"size:100"`
	CreatedAt   time.Time  `gorm:"not null;index;autoCreateTime:false"`
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime:false"`
	CompletedAt *time.Time
	Version     int64 `gorm:"not null;default:1"`
}

func (taskModel) TableName() string {
	return "tasks"
}

func fromDomain(t *domain.Task) *taskModel {
	return &taskModel{
		ID:          t.ID.String(),
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		AssignedTo:  t.AssignedTo,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
		CompletedAt: t.CompletedAt,
		Version:     t.Version,
	}
}

func (m *taskModel) toDomain() (*domain.Task, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	task := &domain.Task{
		ID:          id,
		Title:       m.Title,
		Description: m.Description,
		Status:      domain.TaskStatus(m.Status),
		Priority:    domain.TaskPriority(m.Priority),
		AssignedTo:  m.AssignedTo,
		CreatedBy:   m.CreatedBy,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
		Version:     m.Version,
	}
	if m.CompletedAt != nil {
		completed := m.CompletedAt.UTC()
		task.CompletedAt = &completed
	}
	return task, nil
}
