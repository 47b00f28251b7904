package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/VellumResearchLab/vellum/internal/notebooks"
	"github.com/VellumResearchLab/vellum/internal/tenancy"
)

type notebookRequestPayload struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Archived    bool   `json:"archived"`
}

type noteRequestPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type assignOwnerRequestPayload struct {
	OwnerID string `json:"owner_id" binding:"required"`
}

type notebookResponsePayload struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Archived    bool    `json:"archived"`
	OwnerID     *string `json:"owner_id,omitempty"`
	CreatedAt   int64   `json:"created_at_s"`
	UpdatedAt   int64   `json:"updated_at_s"`
}

type noteResponsePayload struct {
	ID         string  `json:"id"`
	NotebookID string  `json:"notebook_id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	OwnerID    *string `json:"owner_id,omitempty"`
	CreatedAt  int64   `json:"created_at_s"`
	UpdatedAt  int64   `json:"updated_at_s"`
}

func notebookResponse(notebook notebooks.Notebook) notebookResponsePayload {
	return notebookResponsePayload{
		ID:          notebook.ID,
		Name:        notebook.Name,
		Description: notebook.Description,
		Archived:    notebook.Archived,
		OwnerID:     notebook.OwnerID,
		CreatedAt:   notebook.CreatedAt.Unix(),
		UpdatedAt:   notebook.UpdatedAt.Unix(),
	}
}

func noteResponse(note notebooks.Note) noteResponsePayload {
	return noteResponsePayload{
		ID:         note.ID,
		NotebookID: note.NotebookID,
		Title:      note.Title,
		Content:    note.Content,
		OwnerID:    note.OwnerID,
		CreatedAt:  note.CreatedAt.Unix(),
		UpdatedAt:  note.UpdatedAt.Unix(),
	}
}

// respondResourceError maps service failures onto the uniform error
// contract: invisible resources read as absent, ownership violations are
// always forbidden, never masked as not-found.
func (h *httpHandler) respondResourceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, notebooks.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, tenancy.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, notebooks.ErrNameRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "detail": err.Error()})
	default:
		h.logger.Error("resource operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func (h *httpHandler) publishResourceChange(identity tenancy.Identity, owner *string, kind string, ids ...string) {
	userID := identity.UserID
	if owner != nil {
		userID = *owner
	}
	h.realtime.Publish(RealtimeMessage{
		UserID:       userID,
		EventType:    RealtimeEventResourceChanged,
		ResourceKind: kind,
		ResourceIDs:  ids,
		Timestamp:    time.Now().UTC(),
	})
}

func (h *httpHandler) handleListNotebooks(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization_required"})
		return
	}
	visible, err := h.notebooks.ListNotebooks(c.Request.Context(), identity)
	if err != nil {
		h.respondResourceError(c, err)
		return
	}
	response := make([]notebookResponsePayload, 0, len(visible))
	for _, notebook := range visible {
		response = append(response, notebookResponse(notebook))
	}
	c.JSON(http.StatusOK, gin.H{"notebooks": response})
}

func (h *httpHandler) handleCreateNotebook(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization_required"})
		return
	}
	var request notebookRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "detail": err.Error()})
		return
	}
	notebook, err := h.notebooks.CreateNotebook(c.Request.Context(), identity, notebooks.NotebookParams{
		Name:        request.Name,
		Description: request.Description,
		Archived:    request.Archived,
	})
	if err != nil {
		h.respondResourceError(c, err)
		return
	}
	h.publishResourceChange(identity, notebook.OwnerID, "notebook", notebook.ID)
	c.JSON(http.StatusCreated, notebookResponse(notebook))
}

func (h *httpHandler) handleGetNotebook(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization_required"})
		return
	}
	notebook, err := h.notebooks.GetNotebook(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		h.respondResourceError(c, err)
		return
	}
	c.JSON(http.StatusOK, notebookResponse(notebook))
}

func (h *httpHandler) handleUpdateNotebook(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization_required"})
		return
	}
	var request notebookRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "detail": err.Error()})
		return
	}
	notebook, err := h.notebooks.UpdateNotebook(c.Request.Context(), identity, c.Param("id"), notebooks.NotebookParams{
		Name:        request.Name,
		Description: request.Description,
		Archived:    request.Archived,
	})
	if err != nil {
		h.respondResourceError(c, err)
		return
	}
	h.publishResourceChange(identity, notebook.OwnerID, "notebook", notebook.ID)
	c.JSON(http.StatusOK, notebookResponse(notebook))
}

func (h *httpHandler) handleDeleteNotebook(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization_required"})
		return
	}
	notebookID := c.Param("id")
	if err := h.notebooks.DeleteNotebook(c.Request.Context(), identity, notebookID); err != nil {
		h.respondResourceError(c, err)
		return
	}
	h.publishResourceChange(identity, nil, "notebook", notebookID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleAssignNotebookOwner(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization_required"})
		return
	}
	var request assignOwnerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "detail": err.Error()})
		return
	}
	notebook, err := h.notebooks.AssignOwner(c.Request.Context(), identity, c.Param("id"), request.OwnerID)
	if err != nil {
		h.respondResourceError(c, err)
		return
	}
	h.publishResourceChange(identity, notebook.OwnerID, "notebook", notebook.ID)
	c.JSON(http.StatusOK, notebookResponse(notebook))
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization_required"})
		return
	}
	visible, err := h.notebooks.ListNotes(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		h.respondResourceError(c, err)
		return
	}
	response := make([]noteResponsePayload, 0, len(visible))
	for _, note := range visible {
		response = append(response, noteResponse(note))
	}
	c.JSON(http.StatusOK, gin.H{"notes": response})
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization_required"})
		return
	}
	var request noteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "detail": err.Error()})
		return
	}
	note, err := h.notebooks.CreateNote(c.Request.Context(), identity, c.Param("id"), notebooks.NoteParams{
		Title:   request.Title,
		Content: request.Content,
	})
	if err != nil {
		h.respondResourceError(c, err)
		return
	}
	h.publishResourceChange(identity, note.OwnerID, "note", note.ID)
	c.JSON(http.StatusCreated, noteResponse(note))
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization_required"})
		return
	}
	note, err := h.notebooks.GetNote(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		h.respondResourceError(c, err)
		return
	}
	c.JSON(http.StatusOK, noteResponse(note))
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization_required"})
		return
	}
	var request noteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "detail": err.Error()})
		return
	}
	note, err := h.notebooks.UpdateNote(c.Request.Context(), identity, c.Param("id"), notebooks.NoteParams{
		Title:   request.Title,
		Content: request.Content,
	})
	if err != nil {
		h.respondResourceError(c, err)
		return
	}
	h.publishResourceChange(identity, note.OwnerID, "note", note.ID)
	c.JSON(http.StatusOK, noteResponse(note))
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization_required"})
		return
	}
	noteID := c.Param("id")
	if err := h.notebooks.DeleteNote(c.Request.Context(), identity, noteID); err != nil {
		h.respondResourceError(c, err)
		return
	}
	h.publishResourceChange(identity, nil, "note", noteID)
	c.Status(http.StatusNoContent)
}
