package notebooks

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no resource matches the identifier within the
	// caller's visibility.
	ErrNotFound = errors.New("notebooks: not found")
	// ErrNameRequired indicates a notebook was submitted without a name.
	ErrNameRequired = errors.New("notebooks: name is required")
)

// Notebook groups notes under a single owner. OwnerID is nil only for rows
// created before tenancy existed; those are visible to admins alone until
// adopted.
type Notebook struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name        string    `gorm:"column:name;size:320;not null"`
	Description string    `gorm:"column:description;type:text;not null;default:''"`
	Archived    bool      `gorm:"column:archived;not null;default:false"`
	OwnerID     *string   `gorm:"column:owner_id;size:190;index"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Notebook) TableName() string {
	return "notebooks"
}

// Note is a single document inside a notebook. It carries its own owner
// reference so every query stays a single-table scope check.
type Note struct {
	ID         string    `gorm:"column:id;primaryKey;size:190;not null"`
	NotebookID string    `gorm:"column:notebook_id;size:190;not null;index"`
	Title      string    `gorm:"column:title;size:320;not null;default:''"`
	Content    string    `gorm:"column:content;type:text;not null;default:''"`
	OwnerID    *string   `gorm:"column:owner_id;size:190;index"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}
