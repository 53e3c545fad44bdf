package dto

import (
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"

	"eventsphere/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	Unauthorized = "UNAUTHORIZED"
	Forbidden    = "FORBIDDEN"

	EventNotFound          = "EVENT_NOT_FOUND"
	EventFull              = "EVENT_FULL"
	CapacityBelowMembers   = "CAPACITY_BELOW_MEMBERS"
	RegistrationDuplicate  = "REGISTRATION_DUPLICATE"
	RegistrationNotMember  = "REGISTRATION_NOT_MEMBER"
	ProofGenerationFailed  = "PROOF_GENERATION_FAILED"
	ProofGenerationTimeout = "PROOF_GENERATION_TIMEOUT"
	PartialFailure         = "REGISTRATION_PARTIAL_FAILURE"
)

type CreateEventRequest struct {
	Title       string    `json:"title" validate:"required,min=3,max=255"`
	Description string    `json:"description" validate:"max=5000"`
	Date        time.Time `json:"date" validate:"required"`
	Time        string    `json:"time" validate:"omitempty,clock"`
	Location    string    `json:"location" validate:"max=255"`
	Category    string    `json:"category" validate:"omitempty,max=64,category"`
	Organizer   string    `json:"organizer" validate:"max=255"`
	ImageURL    string    `json:"image_url" validate:"omitempty,url"`
	Capacity    int       `json:"capacity" validate:"gte=0"`
}

type ReconcileRequest struct {
	EventID string `json:"event_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
}

// ReconcileMessage is queued when a registration was only partially applied.
type ReconcileMessage struct {
	EventID  string    `json:"event_id"`
	UserID   string    `json:"user_id"`
	Attempt  int       `json:"attempt"`
	Reason   string    `json:"reason"`
	QueuedAt time.Time `json:"queued_at"`
}

type RegistrationResponse struct {
	ID               string    `json:"id"`
	EventID          string    `json:"event_id"`
	UserID           string    `json:"user_id"`
	RegistrationDate time.Time `json:"registration_date"`
	ProofArtifact    string    `json:"proof_artifact"`
}

type ParticipantResponse struct {
	ID               string    `json:"id"`
	EventID          string    `json:"event_id"`
	UserID           string    `json:"user_id"`
	Name             string    `json:"name,omitempty"`
	Email            string    `json:"email,omitempty"`
	RegistrationDate time.Time `json:"registration_date"`
	ProofArtifact    string    `json:"proof_artifact"`
}

type EventResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Date            time.Time `json:"date"`
	Time            string    `json:"time"`
	Location        string    `json:"location"`
	Category        string    `json:"category"`
	Organizer       string    `json:"organizer"`
	ImageURL        string    `json:"image_url"`
	Capacity        int       `json:"capacity"`
	AvailableSeats  int       `json:"available_seats"`
	RegisteredCount int       `json:"registered_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func NewEventResponse(e *model.Event) EventResponse {
	return EventResponse{
		ID:              e.ID,
		Title:           e.Title,
		Description:     e.Description,
		Date:            e.Date,
		Time:            e.Time,
		Location:        e.Location,
		Category:        e.Category,
		Organizer:       e.Organizer,
		ImageURL:        e.ImageURL,
		Capacity:        e.Capacity,
		AvailableSeats:  e.AvailableSeats(),
		RegisteredCount: len(e.RegisteredUsers),
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func NewEventResponses(events []model.Event) []EventResponse {
	resp := make([]EventResponse, 0, len(events))
	for i := range events {
		resp = append(resp, NewEventResponse(&events[i]))
	}
	return resp
}

func NewRegistrationResponse(r *model.Registration) RegistrationResponse {
	return RegistrationResponse{
		ID:               r.ID,
		EventID:          r.EventID,
		UserID:           r.UserID,
		RegistrationDate: r.RegistrationDate,
		ProofArtifact:    r.ProofArtifact,
	}
}

func NewParticipantResponses(ps []model.Participant) []ParticipantResponse {
	resp := make([]ParticipantResponse, 0, len(ps))
	for _, p := range ps {
		resp = append(resp, ParticipantResponse{
			ID:               p.ID,
			EventID:          p.EventID,
			UserID:           p.UserID,
			Name:             p.Name,
			Email:            p.Email,
			RegistrationDate: p.RegistrationDate,
			ProofArtifact:    p.ProofArtifact,
		})
	}
	return resp
}

func ErrorResponse(c *ginext.Context, status int, code, desc string) {
	c.AbortWithStatusJSON(status, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	ErrorResponse(c, http.StatusBadRequest, code, desc)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError)
}

func UnauthorizedError(c *ginext.Context) {
	ErrorResponse(c, http.StatusUnauthorized, Unauthorized, "Authentication required")
}

func ForbiddenError(c *ginext.Context) {
	ErrorResponse(c, http.StatusForbidden, Forbidden, "You are not allowed to perform this action")
}

func EventNotFoundError(c *ginext.Context) {
	ErrorResponse(c, http.StatusNotFound, EventNotFound, "Event not found")
}

func EventFullError(c *ginext.Context) {
	ErrorResponse(c, http.StatusConflict, EventFull, "Event is full")
}

func CapacityBelowMembersError(c *ginext.Context) {
	ErrorResponse(c, http.StatusConflict, CapacityBelowMembers, "Capacity cannot be lower than the number of registered users")
}

func RegistrationDuplicateError(c *ginext.Context) {
	ErrorResponse(c, http.StatusConflict, RegistrationDuplicate, "You have already registered for this event")
}

func RegistrationNotMemberError(c *ginext.Context) {
	ErrorResponse(c, http.StatusConflict, RegistrationNotMember, "User is not registered for this event")
}

func ProofGenerationError(c *ginext.Context) {
	ErrorResponse(c, http.StatusBadGateway, ProofGenerationFailed, "Registration proof could not be generated")
}

func ProofTimeoutError(c *ginext.Context) {
	ErrorResponse(c, http.StatusGatewayTimeout, ProofGenerationTimeout, "Registration proof generation timed out")
}

func PartialFailureError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, PartialFailure,
		"Your seat is reserved but the registration record could not be completed; it will be reconciled")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusCreated, Response{
		Status: "ok",
		Data:   data,
	})
}
