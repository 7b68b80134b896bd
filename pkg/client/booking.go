package client

import (
	"context"
	"net/http"
	"net/url"
)

type BookingClient struct {
	httpClient *HttpClient
}

// DatesRequest is the body of create and edit calls. Dates are YYYY-MM-DD.
type DatesRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

func NewBookingClient(baseUrl string) *BookingClient {
	return &BookingClient{
		httpClient: NewHttpClient(baseUrl),
	}
}

// As returns a client that authenticates with token.
func (c *BookingClient) As(token string) *BookingClient {
	return &BookingClient{httpClient: c.httpClient.WithToken(token)}
}

func (c *BookingClient) Create(spotID string, body any) (*Response, error) {
	return c.httpClient.POST(spotBookingsPath(spotID), body)
}

func (c *BookingClient) CreateWithIdempotencyKey(spotID string, body any, key string) (*Response, error) {
	return c.httpClient.Do(context.Background(), http.MethodPost, spotBookingsPath(spotID), body, map[string]string{
		"Idempotency-Key": key,
	})
}

func (c *BookingClient) ListForSpot(spotID string) (*Response, error) {
	return c.httpClient.GET(spotBookingsPath(spotID))
}

func (c *BookingClient) ListMine() (*Response, error) {
	return c.httpClient.GET("/api/v1/bookings/current")
}

func (c *BookingClient) Edit(id string, body any) (*Response, error) {
	return c.httpClient.PUT(bookingPath(id), body)
}

func (c *BookingClient) Cancel(id string) (*Response, error) {
	return c.httpClient.DELETE(bookingPath(id))
}

func spotBookingsPath(spotID string) string {
	return "/api/v1/spots/" + url.PathEscape(spotID) + "/bookings"
}

func bookingPath(id string) string {
	return "/api/v1/bookings/" + url.PathEscape(id)
}
