package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bookly/pkg/model"
)

// ReservationClient is a typed client for the reservations API.
type ReservationClient struct {
	httpClient *HttpClient
}

func NewReservationClient(baseURL string) *ReservationClient {
	return &ReservationClient{httpClient: NewHttpClient(baseURL)}
}

// WithClientID sets the X-Client-ID header used for rate limiting.
func (c *ReservationClient) WithClientID(id string) *ReservationClient {
	c.httpClient.Headers["X-Client-ID"] = id
	return c
}

func (c *ReservationClient) HTTP() *HttpClient {
	return c.httpClient
}

type Metadata struct {
	TotalCount int64 `json:"total_count"`
	Limit      int   `json:"limit"`
	Offset     int64 `json:"offset"`
}

type BookingQuery struct {
	ResourceID string
	Status     model.BookingStatus
	Window     *model.TimeRange
	Limit      int
	Offset     int64
}

func (q BookingQuery) encode() string {
	v := url.Values{}
	if q.ResourceID != "" {
		v.Set("resource_id", q.ResourceID)
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.Window != nil {
		setRange(v, *q.Window)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.FormatInt(q.Offset, 10))
	}
	return v.Encode()
}

func setRange(v url.Values, r model.TimeRange) {
	v.Set("start", r.Start.UTC().Format(time.RFC3339))
	v.Set("end", r.End.UTC().Format(time.RFC3339))
}

func (c *ReservationClient) CreateResource(ctx context.Context, req *model.CreateResourceRequest) (*model.Resource, error) {
	return expect[model.Resource](c.httpClient.POST(ctx, "/api/v1/resources", req))(http.StatusCreated)
}

func (c *ReservationClient) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	return expect[model.Resource](c.httpClient.GET(ctx, resourcePath(id)))(http.StatusOK)
}

func (c *ReservationClient) ListResources(ctx context.Context, limit int, offset int64) ([]*model.Resource, *Metadata, error) {
	path := fmt.Sprintf("/api/v1/resources?limit=%d&offset=%d", limit, offset)
	var resources []*model.Resource
	meta, err := c.paginated(ctx, path, &resources)
	return resources, meta, err
}

func (c *ReservationClient) DeleteResource(ctx context.Context, id string) error {
	return expectStatus(c.httpClient.DELETE(ctx, resourcePath(id)))(http.StatusNoContent)
}

func (c *ReservationClient) Reconcile(ctx context.Context, id string) error {
	return expectStatus(c.httpClient.POST(ctx, resourcePath(id)+"/reconcile", nil))(http.StatusOK)
}

func (c *ReservationClient) IsAvailable(ctx context.Context, resourceID string, r model.TimeRange) (bool, error) {
	v := url.Values{}
	setRange(v, r)
	body, err := expect[struct {
		Available bool `json:"available"`
	}](c.httpClient.GET(ctx, resourcePath(resourceID)+"/availability?"+v.Encode()))(http.StatusOK)
	if err != nil {
		return false, err
	}
	return body.Available, nil
}

func (c *ReservationClient) FreeSlots(ctx context.Context, resourceID string, within model.TimeRange) ([]model.TimeRange, error) {
	v := url.Values{}
	setRange(v, within)
	slots, err := expect[[]model.TimeRange](c.httpClient.GET(ctx, resourcePath(resourceID)+"/free-slots?"+v.Encode()))(http.StatusOK)
	if err != nil {
		return nil, err
	}
	return *slots, nil
}

// CreateBooking returns the outcome for confirmed and waitlisted requests.
// A rejected request comes back as an *APIError with code SLOT_UNAVAILABLE
// whose details name the stored booking and the conflicting ranges.
func (c *ReservationClient) CreateBooking(ctx context.Context, req *model.CreateBookingRequest) (*model.Outcome, error) {
	resp, err := c.httpClient.POST(ctx, "/api/v1/bookings", req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return nil, decodeAPIError(resp)
	}
	var outcome model.Outcome
	if err := decodeData(resp, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (c *ReservationClient) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	return expect[model.Booking](c.httpClient.GET(ctx, bookingPath(id)))(http.StatusOK)
}

func (c *ReservationClient) ListBookings(ctx context.Context, q BookingQuery) ([]*model.Booking, *Metadata, error) {
	var bookings []*model.Booking
	meta, err := c.paginated(ctx, "/api/v1/bookings?"+q.encode(), &bookings)
	return bookings, meta, err
}

func (c *ReservationClient) CancelBooking(ctx context.Context, id string, version int64) (*model.Booking, error) {
	body := model.CancelBookingRequest{Version: version}
	return expect[model.Booking](c.httpClient.POST(ctx, bookingPath(id)+"/cancel", body))(http.StatusOK)
}

func (c *ReservationClient) ApproveBooking(ctx context.Context, id string, version int64) (*model.Booking, error) {
	body := model.ApproveBookingRequest{Version: version}
	return expect[model.Booking](c.httpClient.POST(ctx, bookingPath(id)+"/approve", body))(http.StatusOK)
}

func (c *ReservationClient) DeclineBooking(ctx context.Context, id string, version int64) (*model.Booking, error) {
	body := model.DeclineBookingRequest{Version: version}
	return expect[model.Booking](c.httpClient.POST(ctx, bookingPath(id)+"/decline", body))(http.StatusOK)
}

func (c *ReservationClient) RescheduleBooking(ctx context.Context, id string, version int64, r model.TimeRange) (*model.Reschedule, error) {
	body := model.RescheduleBookingRequest{Version: version, Start: r.Start, End: r.End}
	return expect[model.Reschedule](c.httpClient.POST(ctx, bookingPath(id)+"/reschedule", body))(http.StatusOK)
}

// expect checks the status and decodes the data envelope into a T.
func expect[T any](resp *Response, err error) func(status int) (*T, error) {
	return func(status int) (*T, error) {
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != status {
			return nil, decodeAPIError(resp)
		}
		var target T
		if err := decodeData(resp, &target); err != nil {
			return nil, err
		}
		return &target, nil
	}
}

func expectStatus(resp *Response, err error) func(status int) error {
	return func(status int) error {
		if err != nil {
			return err
		}
		if resp.StatusCode != status {
			return decodeAPIError(resp)
		}
		return nil
	}
}

func (c *ReservationClient) paginated(ctx context.Context, path string, target any) (*Metadata, error) {
	resp, err := c.httpClient.GET(ctx, path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var wrapper struct {
		Data json.RawMessage `json:"data"`
		Metadata
	}
	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return nil, fmt.Errorf("could not decode paginated response: %s: %w", resp.ToString(), err)
	}
	if err := json.Unmarshal(wrapper.Data, target); err != nil {
		return nil, fmt.Errorf("could not decode page data: %s: %w", resp.ToString(), err)
	}
	return &wrapper.Metadata, nil
}

func decodeData(resp *Response, target any) error {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return fmt.Errorf("could not decode response envelope: %s: %w", resp.ToString(), err)
	}
	if err := json.Unmarshal(wrapper.Data, target); err != nil {
		return fmt.Errorf("could not decode response data: %s: %w", resp.ToString(), err)
	}
	return nil
}

func resourcePath(id string) string {
	return "/api/v1/resources/" + url.PathEscape(id)
}

func bookingPath(id string) string {
	return "/api/v1/bookings/id/" + url.PathEscape(id)
}
