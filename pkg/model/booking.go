package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used on the wire.
const DateLayout = "2006-01-02"

type BookingState string

const (
	BookingPending   BookingState = "pending"
	BookingActive    BookingState = "active"
	BookingCompleted BookingState = "completed"
)

// Booking reserves a spot for the nights in [StartDate, EndDate).
// Dates are stored as UTC midnight.
type Booking struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	SpotID    string    `json:"spotId" bson:"spot_id"`
	UserID    string    `json:"userId" bson:"user_id"`
	StartDate time.Time `json:"startDate" bson:"start_date"`
	EndDate   time.Time `json:"endDate" bson:"end_date"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// BookingView is what a non-owner sees when listing someone else's spot.
type BookingView struct {
	SpotID    string    `json:"spotId"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// State derives the lifecycle state from the calendar date today.
func (b *Booking) State(today time.Time) BookingState {
	switch {
	case today.Before(b.StartDate):
		return BookingPending
	case today.Before(b.EndDate):
		return BookingActive
	default:
		return BookingCompleted
	}
}

func (b *Booking) View() BookingView {
	return BookingView{
		SpotID:    b.SpotID,
		StartDate: b.StartDate,
		EndDate:   b.EndDate,
	}
}

type bookingJSON struct {
	ID        string    `json:"id"`
	SpotID    string    `json:"spotId"`
	UserID    string    `json:"userId"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (b Booking) MarshalJSON() ([]byte, error) {
	return json.Marshal(bookingJSON{
		ID:        b.ID,
		SpotID:    b.SpotID,
		UserID:    b.UserID,
		StartDate: b.StartDate.Format(DateLayout),
		EndDate:   b.EndDate.Format(DateLayout),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	})
}

func (b *Booking) UnmarshalJSON(data []byte) error {
	var raw bookingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := parseDate("startDate", raw.StartDate)
	if err != nil {
		return err
	}
	end, err := parseDate("endDate", raw.EndDate)
	if err != nil {
		return err
	}
	*b = Booking{
		ID:        raw.ID,
		SpotID:    raw.SpotID,
		UserID:    raw.UserID,
		StartDate: start,
		EndDate:   end,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
	}
	return nil
}

type bookingViewJSON struct {
	SpotID    string `json:"spotId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

func (v BookingView) MarshalJSON() ([]byte, error) {
	return json.Marshal(bookingViewJSON{
		SpotID:    v.SpotID,
		StartDate: v.StartDate.Format(DateLayout),
		EndDate:   v.EndDate.Format(DateLayout),
	})
}

func (v *BookingView) UnmarshalJSON(data []byte) error {
	var raw bookingViewJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := parseDate("startDate", raw.StartDate)
	if err != nil {
		return err
	}
	end, err := parseDate("endDate", raw.EndDate)
	if err != nil {
		return err
	}
	*v = BookingView{SpotID: raw.SpotID, StartDate: start, EndDate: end}
	return nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}
