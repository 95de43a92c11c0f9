// Package remote talks to an HTTP prediction endpoint that accepts a
// multipart upload in the "image" field and answers {"species": "..."}.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/phuslu/log"
)

// ErrRemoteInference covers every failure on the remote path: transport,
// non-2xx status, or an unreadable response.
var ErrRemoteInference = errors.New("remote prediction failed")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Response is the body returned by the prediction endpoint.
type Response struct {
	Species string `json:"species"`
}

type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Predict uploads the image and returns the predicted species. There are no
// retries.
func (c *Client) Predict(ctx context.Context, filename string, image io.Reader) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRemoteInference, err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return "", fmt.Errorf("%w: read image: %w", ErrRemoteInference, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRemoteInference, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRemoteInference, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRemoteInference, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close remote response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: endpoint returned %s", ErrRemoteInference, resp.Status)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrRemoteInference, err)
	}
	if out.Species == "" {
		return "", fmt.Errorf("%w: response has no species", ErrRemoteInference)
	}

	log.Info().Str("endpoint", c.endpoint).Str("species", out.Species).Dur("took", time.Since(start)).
		Msg("remote prediction")
	return out.Species, nil
}
