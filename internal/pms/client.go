// Package pms is the client for the official property-management-system API,
// the sanctioned integration channel used when a listing has an active PMS
// integration.
package pms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/guestsync/internal/retry"
	"github.com/guestsync/internal/syncerrors"
	"github.com/guestsync/pkg/models"
)

// Client talks to the PMS REST API.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	RateLimiter *rate.Limiter
	retryConfig retry.Config
}

// NewClient creates a PMS API client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:     baseURL,
		token:       token,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		RateLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
		retryConfig: retry.PMSConfig(),
	}
}

// Thread is one guest conversation as the PMS reports it. The PMS is a
// sanctioned API, so messages arrive with direction already labeled.
type Thread struct {
	ID        string    `json:"id"`
	BookingID string    `json:"booking_id"`
	GuestName string    `json:"guest_name"`
	Messages  []Message `json:"messages"`
}

// Message is one PMS thread message.
type Message struct {
	ID        string    `json:"id"`
	Direction string    `json:"direction"` // "guest" | "host"
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type sendRequest struct {
	Text    string `json:"text"`
	Channel string `json:"channel"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// SendMessage delivers text to the guest of a booking through the PMS.
// Transient statuses are retried with backoff; the returned id is the PMS
// ack for the created message.
func (c *Client) SendMessage(ctx context.Context, bookingID, text, channel string) (string, error) {
	var ack sendResponse
	result := retry.WithBackoff(ctx, c.retryConfig, "pms send message", func() error {
		return c.doJSON(ctx, http.MethodPost,
			fmt.Sprintf("/v1/bookings/%s/messages", url.PathEscape(bookingID)),
			sendRequest{Text: text, Channel: channel}, &ack)
	})
	if !result.Success {
		return "", &syncerrors.SendError{Stage: syncerrors.StageAPI, Err: result.LastError}
	}
	return ack.MessageID, nil
}

// FetchBooking retrieves a booking record.
func (c *Client) FetchBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var payload struct {
		ID        string    `json:"id"`
		GuestName string    `json:"guest_name"`
		CheckIn   time.Time `json:"check_in"`
		CheckOut  time.Time `json:"check_out"`
	}
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/v1/bookings/%s", url.PathEscape(bookingID)), nil, &payload); err != nil {
		return nil, err
	}
	return &models.Booking{
		ID:        payload.ID,
		GuestName: payload.GuestName,
		CheckIn:   payload.CheckIn,
		CheckOut:  payload.CheckOut,
	}, nil
}

// FetchThreads returns the full conversation snapshots for a PMS listing id.
func (c *Client) FetchThreads(ctx context.Context, externalListingID string) ([]Thread, error) {
	var payload struct {
		Threads []Thread `json:"threads"`
	}
	err := c.doJSON(ctx, http.MethodGet,
		fmt.Sprintf("/v1/listings/%s/threads?include=messages", url.PathEscape(externalListingID)), nil, &payload)
	if err != nil {
		return nil, err
	}
	return payload.Threads, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	if err := c.RateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Debug().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("PMS API error response")
		return &syncerrors.FetchError{
			Transport:  "pms_api",
			StatusCode: resp.StatusCode,
			Detail:     string(respBody),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode PMS response: %w", err)
		}
	}
	return nil
}
