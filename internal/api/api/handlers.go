package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wb-go/wbf/ginext"

	"eventsphere/cmd/middleware"
	"eventsphere/internal/dto"
	"eventsphere/internal/model"
	"eventsphere/internal/repo"
	"eventsphere/internal/service"
	"eventsphere/pkg/validator"
)

func (r *Routers) health(c *ginext.Context) {
	c.JSON(http.StatusOK, map[string]any{
		"ok":        true,
		"message":   "EventSphere API is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Routers) listEvents(c *ginext.Context) {
	filter := model.EventFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Search:   strings.TrimSpace(c.Query("search")),
	}
	events, err := r.Events.ListEvents(c.Request.Context(), filter)
	if err != nil {
		r.Log.Error().Err(err).Msg("failed to list events")
		dto.InternalServerError(c)
		return
	}
	dto.SuccessResponse(c, dto.NewEventResponses(events))
}

func (r *Routers) getEvent(c *ginext.Context) {
	event, err := r.Events.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.writeError(c, err)
		return
	}
	dto.SuccessResponse(c, dto.NewEventResponse(event))
}

func (r *Routers) bindEvent(c *ginext.Context) (*model.Event, bool) {
	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(c, dto.FieldBadFormat, "Invalid JSON format")
		return nil, false
	}
	if verr := validator.Validate(c.Request.Context(), req); verr != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, verr.Error())
		return nil, false
	}
	return &model.Event{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Time:        req.Time,
		Location:    req.Location,
		Category:    req.Category,
		Organizer:   req.Organizer,
		ImageURL:    req.ImageURL,
		Capacity:    req.Capacity,
	}, true
}

func (r *Routers) createEvent(c *ginext.Context) {
	event, ok := r.bindEvent(c)
	if !ok {
		return
	}
	created, err := r.Events.CreateEvent(c.Request.Context(), event)
	if err != nil {
		r.writeError(c, err)
		return
	}
	dto.SuccessCreatedResponse(c, dto.NewEventResponse(created))
}

func (r *Routers) updateEvent(c *ginext.Context) {
	event, ok := r.bindEvent(c)
	if !ok {
		return
	}
	event.ID = c.Param("id")
	updated, err := r.Events.UpdateEvent(c.Request.Context(), event)
	if err != nil {
		r.writeError(c, err)
		return
	}
	dto.SuccessResponse(c, dto.NewEventResponse(updated))
}

func (r *Routers) deleteEvent(c *ginext.Context) {
	if err := r.Events.DeleteEvent(c.Request.Context(), c.Param("id")); err != nil {
		r.writeError(c, err)
		return
	}
	dto.SuccessResponse(c, map[string]string{"message": "Deleted"})
}

func (r *Routers) register(c *ginext.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		dto.UnauthorizedError(c)
		return
	}
	reg, err := r.Registrations.Register(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		r.writeError(c, err)
		return
	}
	dto.SuccessCreatedResponse(c, dto.NewRegistrationResponse(reg))
}

func (r *Routers) participants(c *ginext.Context) {
	ps, err := r.Registrations.ListParticipants(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.writeError(c, err)
		return
	}
	dto.SuccessResponse(c, dto.NewParticipantResponses(ps))
}

func (r *Routers) myEvents(c *ginext.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		dto.UnauthorizedError(c)
		return
	}
	events, err := r.Registrations.ListRegisteredEvents(c.Request.Context(), userID)
	if err != nil {
		r.writeError(c, err)
		return
	}
	dto.SuccessResponse(c, dto.NewEventResponses(events))
}

func (r *Routers) stats(c *ginext.Context) {
	s, err := r.Events.Stats(c.Request.Context())
	if err != nil {
		r.writeError(c, err)
		return
	}
	dto.SuccessResponse(c, s)
}

func (r *Routers) reconcile(c *ginext.Context) {
	var req dto.ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(c, dto.FieldBadFormat, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(c.Request.Context(), req); verr != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, verr.Error())
		return
	}
	reg, err := r.Registrations.Reconcile(c.Request.Context(), req.EventID, req.UserID)
	if err != nil {
		r.writeError(c, err)
		return
	}
	dto.SuccessResponse(c, dto.NewRegistrationResponse(reg))
}

// writeError maps every error kind to its own status and code.
func (r *Routers) writeError(c *ginext.Context, err error) {
	var partial *service.PartialFailureError
	switch {
	case errors.Is(err, service.ErrEventNotFound):
		dto.EventNotFoundError(c)
	case errors.Is(err, service.ErrAlreadyRegistered):
		dto.RegistrationDuplicateError(c)
	case errors.Is(err, service.ErrCapacityExceeded):
		dto.EventFullError(c)
	case errors.As(err, &partial):
		dto.PartialFailureError(c)
	case errors.Is(err, service.ErrProofTimeout):
		dto.ProofTimeoutError(c)
	case errors.Is(err, service.ErrProofGeneration):
		dto.ProofGenerationError(c)
	case errors.Is(err, service.ErrNotMember):
		dto.RegistrationNotMemberError(c)
	case errors.Is(err, repo.ErrCapacityBelowMembers):
		dto.CapacityBelowMembersError(c)
	case errors.Is(err, service.ErrInvalidArgument):
		dto.BadResponseError(c, dto.FieldIncorrect, err.Error())
	default:
		r.Log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		dto.InternalServerError(c)
	}
}
