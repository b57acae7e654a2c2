package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"seatlock/internal/catalog"

	"github.com/go-playground/validator/v10"
)

// Client message types
const (
	MessageJoin       = "join"
	MessageLeave      = "leave"
	MessageAcquire    = "acquire"
	MessageRelease    = "release"
	MessageReleaseAll = "release-all"
)

// ClientMessage is the envelope of everything a client sends
type ClientMessage struct {
	Type string          `json:"type" validate:"required,oneof=join leave acquire release release-all"`
	Data json.RawMessage `json:"data" validate:"required"`
}

// ShowRequest is the payload of join, leave and release-all
type ShowRequest struct {
	ShowID string `json:"show_id" validate:"required,uuid"`
}

// SeatRequest is the payload of acquire and release
type SeatRequest struct {
	ShowID string `json:"show_id" validate:"required,uuid"`
	Row    *int   `json:"row" validate:"required,min=0"`
	Column *int   `json:"column" validate:"required,min=0"`
}

func (r SeatRequest) Seat() catalog.Seat {
	return catalog.Seat{Row: *r.Row, Column: *r.Column}
}

// WelcomePayload tells the client which holder id its leases carry and how
// long a lease lasts without being refreshed
type WelcomePayload struct {
	SessionID    string `json:"session_id"`
	LeaseSeconds int    `json:"lease_seconds"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// decode unmarshals raw into dest and validates it
func decode(v *validator.Validate, raw []byte, dest interface{}) error {
	if err := json.Unmarshal(raw, dest); err != nil {
		return errors.New("malformed message")
	}
	if err := v.Struct(dest); err != nil {
		return describeValidation(err)
	}
	return nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return errors.New("invalid message: " + strings.Join(parts, ", "))
}
