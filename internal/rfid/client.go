// Package rfid is a client for the factory RFID allocation service, which
// hands out unique pairing identifiers per product.
package rfid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrServer is returned when the service answers with a failure status.
	ErrServer = errors.New("rfid server error")
	// ErrEmptyAllocation is returned when the service returns no identifier.
	ErrEmptyAllocation = errors.New("rfid server returned no identifier")
)

// Allocator hands out the next free identifier for a product.
type Allocator interface {
	Next(ctx context.Context, family string, productID int, comment string) (string, error)
}

// Client calls the allocation service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	log     logrus.FieldLogger
}

var _ Allocator = (*Client)(nil)

type nextRequest struct {
	ProductFamily string `json:"product_family"`
	ProductID     int    `json:"product_id"`
	Comment       string `json:"comment"`
}

type nextResponse struct {
	RFID  string `json:"rfid"`
	Error string `json:"error,omitempty"`
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.WithField("component", "rfid_client"),
	}
}

// Next requests the next identifier. The returned value is the service's
// 0x-prefixed hex string.
func (c *Client) Next(ctx context.Context, family string, productID int, comment string) (string, error) {
	body, err := json.Marshal(nextRequest{
		ProductFamily: family,
		ProductID:     productID,
		Comment:       comment,
	})
	if err != nil {
		return "", fmt.Errorf("encoding rfid request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/next", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building rfid request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("rfid request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("reading rfid response: %w", err)
	}

	var decoded nextResponse
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &decoded); err != nil && resp.StatusCode < 400 {
			return "", fmt.Errorf("decoding rfid response: %w", err)
		}
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: status %d: %s", ErrServer, resp.StatusCode, decoded.Error)
	}

	if decoded.RFID == "" {
		return "", ErrEmptyAllocation
	}

	c.log.WithFields(logrus.Fields{
		"family":     family,
		"product_id": productID,
		"rfid":       decoded.RFID,
	}).Info("Allocated RFID")

	return decoded.RFID, nil
}
