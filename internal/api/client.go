// Package api is the HTTP side of the trip wire contract: guest
// booking, trip reads, and cancellation. The sync engine consumes it
// for polling and resume; the booking flow consumes it directly.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ridesync/internal/auth"
	"ridesync/internal/config"
	"ridesync/internal/models"
	"ridesync/pkg/logger"
)

type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	log        *logger.Logger
}

func NewClient(cfg *config.APIConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		log: log,
	}
}

// GuestBookingRequest creates a trip without an authenticated account.
type GuestBookingRequest struct {
	PickupAddress       string         `json:"pickup_address"`
	DestinationAddress  string         `json:"destination_address"`
	PickupLocation      *models.LatLng `json:"pickup_location,omitempty"`
	DestinationLocation *models.LatLng `json:"destination_location,omitempty"`
	FareEstimate        *models.Fare   `json:"fare_estimate,omitempty"`
	PassengerName       string         `json:"passenger_name"`
	PassengerPhone      string         `json:"passenger_phone"`
	WheelchairRequired  bool           `json:"wheelchair_required,omitempty"`
	InfantSeatRequired  bool           `json:"infant_seat_required,omitempty"`
	AirportID           string         `json:"airport_id,omitempty"`
}

// Validate rejects bookings the server would bounce anyway.
func (r *GuestBookingRequest) Validate() error {
	if r.PickupAddress == "" {
		return fmt.Errorf("pickup address is required")
	}
	if r.DestinationAddress == "" {
		return fmt.Errorf("destination address is required")
	}
	if r.PassengerPhone == "" {
		return fmt.Errorf("passenger phone is required")
	}
	return nil
}

type CancelRequest struct {
	Reason   string         `json:"reason"`
	Location *models.LatLng `json:"location,omitempty"`
	Address  string         `json:"address,omitempty"`
}

type guestBookingResponse struct {
	models.Trip
	Guest struct {
		ID string `json:"id"`
	} `json:"guest"`
}

// CreateGuestBooking submits a guest trip. The returned guest session
// id is the bearer of authorization for every later operation on the
// trip; the caller must hold on to it.
func (c *Client) CreateGuestBooking(ctx context.Context, req *GuestBookingRequest) (*models.Trip, string, error) {
	if err := req.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid booking: %w", err)
	}

	var decoded guestBookingResponse
	if err := c.do(ctx, http.MethodPost, "/trips/guest-booking", nil, req, &decoded); err != nil {
		return nil, "", err
	}
	if decoded.ID == "" || decoded.Guest.ID == "" {
		return nil, "", fmt.Errorf("guest booking response missing trip or guest id")
	}

	trip := decoded.Trip
	trip.GuestSessionID = decoded.Guest.ID
	return &trip, decoded.Guest.ID, nil
}

// GetTrip fetches the current trip snapshot using whichever credential
// mode owns the trip.
func (c *Client) GetTrip(ctx context.Context, tripID string, cred auth.Credential) (*models.Trip, error) {
	if err := cred.Validate(time.Now()); err != nil {
		return nil, err
	}

	query := url.Values{}
	if cred.Mode == auth.ModeGuest {
		query.Set("guest_id", cred.GuestSessionID)
	}

	var trip models.Trip
	if err := c.doWithCredential(ctx, http.MethodGet, "/trips/"+url.PathEscape(tripID), query, nil, &trip, cred); err != nil {
		return nil, err
	}
	if trip.ID == "" {
		return nil, fmt.Errorf("trip response missing id")
	}
	return &trip, nil
}

// CancelTrip cancels with a reason and the passenger's position so
// dispatch can apply the right cancellation policy.
func (c *Client) CancelTrip(ctx context.Context, tripID string, cred auth.Credential, req *CancelRequest) (*models.Trip, error) {
	if err := cred.Validate(time.Now()); err != nil {
		return nil, err
	}

	target := tripID
	if cred.Mode == auth.ModeGuest {
		target = cred.GuestSessionID
	}

	var trip models.Trip
	if err := c.doWithCredential(ctx, http.MethodPost, "/trips/"+url.PathEscape(target)+"/cancel", nil, req, &trip, cred); err != nil {
		return nil, err
	}
	return &trip, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest interface{}) error {
	return c.doWithCredential(ctx, method, path, query, body, dest, auth.Credential{})
}

func (c *Client) doWithCredential(ctx context.Context, method, path string, query url.Values, body, dest interface{}, cred auth.Credential) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if cred.Mode == auth.ModeAuthenticated {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
