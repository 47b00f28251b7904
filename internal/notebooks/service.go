package notebooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/VellumResearchLab/vellum/internal/tenancy"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// ServiceError carries an operation-scoped code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable failure code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "notebooks.service.new"
	opCreateNotebook = "notebooks.create_notebook"
	opUpdateNotebook = "notebooks.update_notebook"
	opDeleteNotebook = "notebooks.delete_notebook"
	opAssignOwner    = "notebooks.assign_owner"
	opCreateNote     = "notebooks.create_note"
	opUpdateNote     = "notebooks.update_note"
	opDeleteNote     = "notebooks.delete_note"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ServiceConfig describes the dependencies of the notebook service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service implements notebook and note operations. Every read is scoped to
// the caller's identity and every write re-checks ownership; admins bypass
// both.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the notebook service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// NotebookParams carries notebook fields settable by the caller. The owner
// is never among them.
type NotebookParams struct {
	Name        string
	Description string
	Archived    bool
}

// CreateNotebook creates a notebook owned by the caller. Any owner supplied
// by the client was discarded before this point; the reference is stamped
// from the resolved identity.
func (s *Service) CreateNotebook(ctx context.Context, identity tenancy.Identity, params NotebookParams) (Notebook, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return Notebook{}, ErrNameRequired
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Notebook{}, newServiceError(opCreateNotebook, "id_generation", err)
	}

	now := s.clock().UTC()
	notebook := Notebook{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(params.Description),
		Archived:    params.Archived,
		OwnerID:     tenancy.OwnerFor(identity),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&notebook).Error; err != nil {
		return Notebook{}, newServiceError(opCreateNotebook, "store", err)
	}
	return notebook, nil
}

// ListNotebooks returns the notebooks visible to the caller, newest first.
func (s *Service) ListNotebooks(ctx context.Context, identity tenancy.Identity) ([]Notebook, error) {
	var visible []Notebook
	query := tenancy.Scope(s.db.WithContext(ctx).Model(&Notebook{}), identity)
	if err := query.Order("created_at DESC").Find(&visible).Error; err != nil {
		return nil, err
	}
	return visible, nil
}

// GetNotebook loads one notebook within the caller's visibility.
func (s *Service) GetNotebook(ctx context.Context, identity tenancy.Identity, notebookID string) (Notebook, error) {
	var notebook Notebook
	query := tenancy.Scope(s.db.WithContext(ctx).Where("id = ?", notebookID), identity)
	err := query.Take(&notebook).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Notebook{}, ErrNotFound
	}
	if err != nil {
		return Notebook{}, err
	}
	return notebook, nil
}

// UpdateNotebook rewrites caller-settable fields after re-checking that the
// stored owner matches the caller (or the caller is an admin).
func (s *Service) UpdateNotebook(ctx context.Context, identity tenancy.Identity, notebookID string, params NotebookParams) (Notebook, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return Notebook{}, ErrNameRequired
	}

	notebook, err := s.loadNotebook(ctx, notebookID)
	if err != nil {
		return Notebook{}, err
	}
	if err := tenancy.AuthorizeWrite(notebook.OwnerID, identity); err != nil {
		return Notebook{}, err
	}

	updates := map[string]interface{}{
		"name":        name,
		"description": strings.TrimSpace(params.Description),
		"archived":    params.Archived,
		"updated_at":  s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Model(&Notebook{}).Where("id = ?", notebookID).Updates(updates).Error; err != nil {
		return Notebook{}, newServiceError(opUpdateNotebook, "store", err)
	}
	return s.loadNotebook(ctx, notebookID)
}

// DeleteNotebook removes a notebook and every note inside it.
func (s *Service) DeleteNotebook(ctx context.Context, identity tenancy.Identity, notebookID string) error {
	notebook, err := s.loadNotebook(ctx, notebookID)
	if err != nil {
		return err
	}
	if err := tenancy.AuthorizeWrite(notebook.OwnerID, identity); err != nil {
		return err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("notebook_id = ?", notebookID).Delete(&Note{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", notebookID).Delete(&Notebook{}).Error
	})
	if txErr != nil {
		return newServiceError(opDeleteNotebook, "store", txErr)
	}
	s.logger.Info("notebook deleted", zap.String("notebook_id", notebookID), zap.String("by", identity.UserID))
	return nil
}

// AssignOwner adopts a notebook (typically an orphan) and its notes to the
// given user. Admin-only.
func (s *Service) AssignOwner(ctx context.Context, identity tenancy.Identity, notebookID, ownerID string) (Notebook, error) {
	if !identity.IsAdmin() {
		return Notebook{}, tenancy.ErrForbidden
	}
	if _, err := s.loadNotebook(ctx, notebookID); err != nil {
		return Notebook{}, err
	}

	now := s.clock().UTC()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Notebook{}).Where("id = ?", notebookID).
			Updates(map[string]interface{}{"owner_id": ownerID, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.Model(&Note{}).Where("notebook_id = ?", notebookID).
			Updates(map[string]interface{}{"owner_id": ownerID, "updated_at": now}).Error
	})
	if txErr != nil {
		return Notebook{}, newServiceError(opAssignOwner, "store", txErr)
	}
	s.logger.Info("notebook owner assigned",
		zap.String("notebook_id", notebookID),
		zap.String("owner_id", ownerID),
		zap.String("by", identity.UserID))
	return s.loadNotebook(ctx, notebookID)
}

// NoteParams carries note fields settable by the caller.
type NoteParams struct {
	Title   string
	Content string
}

// CreateNote creates a note inside a notebook the caller can see.
func (s *Service) CreateNote(ctx context.Context, identity tenancy.Identity, notebookID string, params NoteParams) (Note, error) {
	// Scoped lookup: a notebook outside the caller's visibility reads as
	// absent, so creating into it fails the same way as a bad id.
	if _, err := s.GetNotebook(ctx, identity, notebookID); err != nil {
		return Note{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Note{}, newServiceError(opCreateNote, "id_generation", err)
	}

	now := s.clock().UTC()
	note := Note{
		ID:         id,
		NotebookID: notebookID,
		Title:      strings.TrimSpace(params.Title),
		Content:    params.Content,
		OwnerID:    tenancy.OwnerFor(identity),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		return Note{}, newServiceError(opCreateNote, "store", err)
	}
	return note, nil
}

// ListNotes returns the notes of a notebook within the caller's visibility.
func (s *Service) ListNotes(ctx context.Context, identity tenancy.Identity, notebookID string) ([]Note, error) {
	if _, err := s.GetNotebook(ctx, identity, notebookID); err != nil {
		return nil, err
	}
	var visible []Note
	query := tenancy.Scope(s.db.WithContext(ctx).Model(&Note{}).Where("notebook_id = ?", notebookID), identity)
	if err := query.Order("created_at DESC").Find(&visible).Error; err != nil {
		return nil, err
	}
	return visible, nil
}

// GetNote loads one note within the caller's visibility.
func (s *Service) GetNote(ctx context.Context, identity tenancy.Identity, noteID string) (Note, error) {
	var note Note
	query := tenancy.Scope(s.db.WithContext(ctx).Where("id = ?", noteID), identity)
	err := query.Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

// UpdateNote rewrites a note after the ownership re-check.
func (s *Service) UpdateNote(ctx context.Context, identity tenancy.Identity, noteID string, params NoteParams) (Note, error) {
	note, err := s.loadNote(ctx, noteID)
	if err != nil {
		return Note{}, err
	}
	if err := tenancy.AuthorizeWrite(note.OwnerID, identity); err != nil {
		return Note{}, err
	}

	updates := map[string]interface{}{
		"title":      strings.TrimSpace(params.Title),
		"content":    params.Content,
		"updated_at": s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Model(&Note{}).Where("id = ?", noteID).Updates(updates).Error; err != nil {
		return Note{}, newServiceError(opUpdateNote, "store", err)
	}
	return s.loadNote(ctx, noteID)
}

// DeleteNote removes a note after the ownership re-check.
func (s *Service) DeleteNote(ctx context.Context, identity tenancy.Identity, noteID string) error {
	note, err := s.loadNote(ctx, noteID)
	if err != nil {
		return err
	}
	if err := tenancy.AuthorizeWrite(note.OwnerID, identity); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("id = ?", noteID).Delete(&Note{}).Error; err != nil {
		return newServiceError(opDeleteNote, "store", err)
	}
	return nil
}

// loadNotebook reads a notebook without tenancy scoping. Mutations load the
// stored row first so the ownership re-check sees the actual owner, then
// fail Forbidden rather than NotFound on a mismatch.
func (s *Service) loadNotebook(ctx context.Context, notebookID string) (Notebook, error) {
	var notebook Notebook
	err := s.db.WithContext(ctx).Where("id = ?", notebookID).Take(&notebook).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Notebook{}, ErrNotFound
	}
	if err != nil {
		return Notebook{}, err
	}
	return notebook, nil
}

func (s *Service) loadNote(ctx context.Context, noteID string) (Note, error) {
	var note Note
	err := s.db.WithContext(ctx).Where("id = ?", noteID).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, err
	}
	return note, nil
}
