package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"terrana/internal/config"
	"terrana/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	// ErrConflict maps the backend's slot-taken response. Callers must
	// invalidate cached availability and let the user pick another slot
	// instead of retrying blindly.
	ErrConflict = errors.New("slot already reserved")

	// ErrUnavailable covers transport failures. Submissions are never
	// retried automatically on it: a retry could double-book.
	ErrUnavailable = errors.New("reservation backend unreachable")
)

// Client talks to the reservation backend, the source of truth for
// records, conflicts and the daily quota.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger
}

func NewClient(cfg config.BackendConfig, logger *zerolog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 5
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		logger:     logger,
	}
}

// ListReservations fetches the raw reservation list for one facility.
func (c *Client) ListReservations(ctx context.Context, facilityID int64) ([]models.ReservationRecord, error) {
	endpoint := fmt.Sprintf("%s/api/v1/terrains/%d/reservations", c.baseURL, facilityID)
	var wrap struct {
		Reservations []models.ReservationRecord `json:"reservations"`
	}
	if err := c.doGet(ctx, endpoint, &wrap); err != nil {
		return nil, err
	}
	return wrap.Reservations, nil
}

// CreateReservation submits a booking draft. Every submission carries a
// fresh idempotency key so a transport-level retry by the backend cannot
// create a duplicate record. A 409 comes back as ErrConflict.
func (c *Client) CreateReservation(ctx context.Context, draft *models.BookingDraft) (*models.CreateReservationResult, error) {
	endpoint := fmt.Sprintf("%s/api/v1/reservations", c.baseURL)

	body := map[string]any{
		"terrain_id":     draft.FacilityID,
		"date":           draft.Date,
		"hour":           draft.Hour,
		"payment_method": draft.PaymentMethod,
		"price":          draft.Price,
	}
	if draft.ClientID != nil {
		body["id_client"] = *draft.ClientID
	} else {
		body["name"] = draft.Name
		body["email"] = draft.Email
		body["phone"] = draft.Phone
	}

	var result models.CreateReservationResult
	headers := map[string]string{"Idempotency-Key": uuid.NewString()}
	if err := c.doPost(ctx, endpoint, body, headers, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateReservation patches backend fields, e.g. marking a cash record
// settled or an overdue one expired.
func (c *Client) UpdateReservation(ctx context.Context, id int64, fields map[string]any) error {
	endpoint := fmt.Sprintf("%s/api/v1/reservations/%d", c.baseURL, id)
	return c.doJSON(ctx, http.MethodPatch, endpoint, fields, nil, nil)
}

// RefreshDailyCount returns the authoritative reservation count for the
// current user and day.
func (c *Client) RefreshDailyCount(ctx context.Context) (int, error) {
	endpoint := fmt.Sprintf("%s/api/v1/reservations/daily-count", c.baseURL)
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	return c.doJSON(ctx, http.MethodGet, endpoint, nil, nil, out)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body any, headers map[string]string, out any) error {
	return c.doJSON(ctx, http.MethodPost, endpoint, body, headers, out)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body any, headers map[string]string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return ErrConflict
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("backend http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
