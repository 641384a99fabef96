// Package classifier calls the external reinfection classifier.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
)

// Labels returned by Predict.
const (
	LabelYes = "Yes"
	LabelNo  = "No"
)

// Classifier predicts whether a patient will be reinfected.
type Classifier interface {
	Predict(ctx context.Context, records []domain.PatientContext) (string, error)
}

// HTTPClient posts records to a classifier service.
type HTTPClient struct {
	URL    string
	Client *http.Client
}

var _ Classifier = (*HTTPClient)(nil)

// NewHTTPClient returns a client for url. A zero timeout uses 10s.
func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		URL:    strings.TrimSpace(url),
		Client: &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	Records []domain.PatientContext `json:"records"`
}

type predictResponse struct {
	Prediction json.RawMessage `json:"prediction"`
}

// Predict returns LabelYes or LabelNo.
func (c *HTTPClient) Predict(ctx context.Context, records []domain.PatientContext) (string, error) {
	if c.URL == "" {
		return "", domain.ErrConfiguration("classifier url not configured")
	}

	body, err := json.Marshal(predictRequest{Records: records})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call classifier: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	label, err := ParseLabel(out.Prediction)
	if err != nil {
		return "", err
	}

	slog.Debug("classifier prediction",
		slog.String("label", label),
		slog.Int("records", len(records)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return label, nil
}

// ParseLabel accepts 0/1, booleans, and "yes"/"no" strings in any case.
// Arrays use their first element.
func ParseLabel(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("invalid prediction %q: %w", string(raw), err)
	}
	return labelOf(v)
}

func labelOf(v any) (string, error) {
	switch val := v.(type) {
	case float64:
		if val >= 0.5 {
			return LabelYes, nil
		}
		return LabelNo, nil
	case bool:
		if val {
			return LabelYes, nil
		}
		return LabelNo, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "yes", "1", "true":
			return LabelYes, nil
		case "no", "0", "false":
			return LabelNo, nil
		}
	case []any:
		if len(val) > 0 {
			return labelOf(val[0])
		}
	}
	return "", fmt.Errorf("unrecognised prediction %v", v)
}
