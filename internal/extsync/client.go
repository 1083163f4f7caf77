// Package extsync reconciles the booking ledger with the external
// scheduling platform.  The platform is a peer system: it accepts and
// cancels the same slots outside this service's control and offers no
// transactional coupling, so the engine works by comparing both sides and
// healing divergence exclusively through ledger operations.
package extsync

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "time"

    "github.com/mariia-hub/booking-engine/internal/model"
)

// ErrExternalUnreachable is returned when the external platform cannot be
// reached or answers outside 2xx.  Reconciliation retries with backoff;
// the error is never surfaced to end users and never alters local state.
var ErrExternalUnreachable = errors.New("external platform unreachable")

// ErrManualResolutionRequired is returned when an automatic policy is
// asked to act on a conflict that only an administrator may decide — both
// sides holding active claims for different customers.
var ErrManualResolutionRequired = errors.New("conflict requires manual resolution")

// ExternalBooking is the platform's view of one active booking.
type ExternalBooking struct {
    Ref       string        `json:"ref"`
    Slot      model.SlotKey `json:"slot"`
    EndsAt    time.Time     `json:"ends_at"`
    Customer  string        `json:"customer"`
    CreatedAt time.Time     `json:"created_at"`
}

// Client is the minimal surface the engine needs from the platform:
// create, cancel and list.  Implementations must report transport-level
// failures with errors matching ErrExternalUnreachable.
type Client interface {
    Create(ctx context.Context, b ExternalBooking) (ref string, err error)
    Cancel(ctx context.Context, ref string) error
    List(ctx context.Context, from, to time.Time) ([]ExternalBooking, error)
}

// HTTPClient talks to the platform's REST API.  The API is treated as an
// unreliable, independently consistent peer: every call carries a timeout
// and any transport or server failure maps to ErrExternalUnreachable.
type HTTPClient struct {
    baseURL string
    apiKey  string
    http    *http.Client
}

// NewHTTPClient builds a client for the given base URL and API key.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
    return &HTTPClient{
        baseURL: baseURL,
        apiKey:  apiKey,
        http:    &http.Client{Timeout: 10 * time.Second},
    }
}

// statusError preserves the HTTP status of a failed call so callers can
// special-case individual codes while still matching ErrExternalUnreachable.
type statusError struct {
    code   int
    method string
    path   string
}

func (e *statusError) Error() string {
    return fmt.Sprintf("%s %s returned %d", e.method, e.path, e.code)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
    var reader io.Reader
    if body != nil {
        buf, err := json.Marshal(body)
        if err != nil {
            return err
        }
        reader = bytes.NewReader(buf)
    }
    req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
    if err != nil {
        return err
    }
    req.Header.Set("Authorization", "Bearer "+c.apiKey)
    if body != nil {
        req.Header.Set("Content-Type", "application/json")
    }
    resp, err := c.http.Do(req)
    if err != nil {
        return fmt.Errorf("%w: %v", ErrExternalUnreachable, err)
    }
    defer resp.Body.Close()
    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        return fmt.Errorf("%w: %w", ErrExternalUnreachable, &statusError{code: resp.StatusCode, method: method, path: path})
    }
    if out == nil {
        return nil
    }
    if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
        return fmt.Errorf("%w: decode: %v", ErrExternalUnreachable, err)
    }
    return nil
}

// Create registers a booking on the platform and returns its reference.
func (c *HTTPClient) Create(ctx context.Context, b ExternalBooking) (string, error) {
    var resp struct {
        Ref string `json:"ref"`
    }
    if err := c.do(ctx, http.MethodPost, "/v1/bookings", b, &resp); err != nil {
        return "", err
    }
    return resp.Ref, nil
}

// Cancel releases a booking on the platform.  A reference the platform no
// longer knows counts as already cancelled.
func (c *HTTPClient) Cancel(ctx context.Context, ref string) error {
    err := c.do(ctx, http.MethodDelete, "/v1/bookings/"+url.PathEscape(ref), nil, nil)
    var se *statusError
    if errors.As(err, &se) && se.code == http.StatusNotFound {
        return nil
    }
    return err
}

// List returns the platform's active bookings with slots starting inside
// [from, to).
func (c *HTTPClient) List(ctx context.Context, from, to time.Time) ([]ExternalBooking, error) {
    q := url.Values{}
    q.Set("from", from.UTC().Format(time.RFC3339))
    q.Set("to", to.UTC().Format(time.RFC3339))
    var resp struct {
        Bookings []ExternalBooking `json:"bookings"`
    }
    if err := c.do(ctx, http.MethodGet, "/v1/bookings?"+q.Encode(), nil, &resp); err != nil {
        return nil, err
    }
    return resp.Bookings, nil
}
