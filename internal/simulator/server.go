package simulator

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"ridesync/internal/models"
	"ridesync/pkg/clock"
	"ridesync/pkg/logger"
)

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type errorEnvelope struct {
	Status    string    `json:"status"`
	Error     *apiError `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func errorResponse(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, errorEnvelope{
		Status:    "error",
		Error:     &apiError{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
}

// Server wires the store, the lifecycle script, and the push hub under
// one gin router.
type Server struct {
	store   *tripStore
	hub     *Hub
	script  *script
	log     *logger.Logger
	router  *gin.Engine
	hubOnce sync.Once
}

func NewServer(cfg ScriptConfig, clk clock.Clock, log *logger.Logger) *Server {
	store := newTripStore()
	hub := NewHub(log)
	s := &Server{
		store:  store,
		hub:    hub,
		script: newScript(cfg, store, hub, clk, log),
		log:    log,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	{
		v1.POST("/trips/guest-booking", s.createGuestBooking)
		v1.GET("/trips/:id", s.getTrip)
		v1.POST("/trips/:id/cancel", s.cancelTrip)
	}
	router.GET("/ws", func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request)
	})

	s.router = router
	return s
}

// Run starts the hub pump and serves HTTP. Blocks until the listener
// fails.
func (s *Server) Run(addr string) error {
	s.hubOnce.Do(func() { go s.hub.Run() })
	s.log.WithField("addr", addr).Info("Trip simulator listening")
	return s.router.Run(addr)
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler {
	s.hubOnce.Do(func() { go s.hub.Run() })
	return s.router
}

type guestBookingRequest struct {
	PickupAddress       string         `json:"pickup_address" binding:"required"`
	DestinationAddress  string         `json:"destination_address" binding:"required"`
	PickupLocation      *models.LatLng `json:"pickup_location"`
	DestinationLocation *models.LatLng `json:"destination_location"`
	FareEstimate        *models.Fare   `json:"fare_estimate"`
	PassengerName       string         `json:"passenger_name"`
	PassengerPhone      string         `json:"passenger_phone" binding:"required"`
}

type guestBookingResponse struct {
	*models.Trip
	Guest struct {
		ID string `json:"id"`
	} `json:"guest"`
}

func (s *Server) createGuestBooking(c *gin.Context) {
	var req guestBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	trip := s.store.CreateGuestTrip(req.PickupAddress, req.DestinationAddress,
		req.PickupLocation, req.DestinationLocation, req.FareEstimate)
	s.script.Start(trip.ID)
	s.log.WithTripID(trip.ID).WithGuestID(trip.GuestSessionID).Info("Guest trip booked")

	resp := guestBookingResponse{Trip: trip}
	resp.Guest.ID = trip.GuestSessionID
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) getTrip(c *gin.Context) {
	trip, err := s.store.Get(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusNotFound, "TRIP_NOT_FOUND", "Trip not found")
		return
	}

	// Guest trips require the matching guest session id; authenticated
	// reads present a bearer token the simulator accepts as-is.
	if trip.GuestSessionID != "" {
		if c.Query("guest_id") != trip.GuestSessionID {
			errorResponse(c, http.StatusForbidden, "FORBIDDEN", "Guest session does not own this trip")
			return
		}
	}

	c.JSON(http.StatusOK, trip)
}

type cancelRequest struct {
	Reason   string         `json:"reason"`
	Location *models.LatLng `json:"location"`
	Address  string         `json:"address"`
}

func (s *Server) cancelTrip(c *gin.Context) {
	target, err := s.store.Resolve(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusNotFound, "TRIP_NOT_FOUND", "Trip not found")
		return
	}

	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	now := time.Now().UTC()
	trip, err := s.store.Update(target.ID, func(t *models.Trip) error {
		if t.Status.Value.IsTerminal() {
			return ErrAlreadyFinished
		}
		t.Status = models.Status{Value: models.TripStatusCancelled}
		t.CancelledAt = &now
		t.CancellationReason = req.Reason
		return nil
	})
	if err != nil {
		errorResponse(c, http.StatusConflict, "CONFLICT", "Trip already finished")
		return
	}

	s.log.WithTripID(trip.ID).WithField("reason", req.Reason).Info("Trip cancelled")
	s.hub.Broadcast(trip, models.EventTripStatusUpdate, trip)
	c.JSON(http.StatusOK, trip)
}
