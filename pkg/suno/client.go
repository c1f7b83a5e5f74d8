package suno

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL     = "https://api.sunoapi.org/api/v1"
	DefaultUserAgent   = "SunoSoundGen/1.0"
	DefaultCallbackURL = "https://localhost/suno-callback"
	DefaultModel       = "V5"

	codeOK = 200
)

// ErrUnexpectedResponse is returned when the API answers without a usable result.
var ErrUnexpectedResponse = errors.New("unexpected API response")

// APIError is a non-2xx HTTP answer.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API %d: %s", e.StatusCode, e.Body)
}

var tracer trace.Tracer = otel.Tracer("github.com/wachiwi/suno-sounds/pkg/suno")

// Client talks to the generation API. The callback URL is required by the
// API but unused because results are polled.
type Client struct {
	BaseURL     string
	APIKey      string
	UserAgent   string
	CallbackURL string
	Model       string
	// HTTPClient serves API calls, DownloadClient serves artifact fetches.
	HTTPClient     *http.Client
	DownloadClient *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		BaseURL:        DefaultBaseURL,
		APIKey:         apiKey,
		UserAgent:      DefaultUserAgent,
		CallbackURL:    DefaultCallbackURL,
		Model:          DefaultModel,
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
		DownloadClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// GenerateRequest is the body of a generation submission.
type GenerateRequest struct {
	Prompt       string `json:"prompt"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	CallBackURL  string `json:"callBackUrl"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
}

// Options selects the generation mode for Submit.
type Options struct {
	Vocals bool
	// A non-empty Style switches the request to custom mode.
	Style string
	Title string
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Submit sends a generation request and returns the remote task id.
func (c *Client) Submit(ctx context.Context, prompt string, opts Options) (string, error) {
	ctx, span := tracer.Start(ctx, "suno.Submit")
	defer span.End()

	req := GenerateRequest{
		Prompt:       prompt,
		CustomMode:   opts.Style != "",
		Instrumental: !opts.Vocals,
		Model:        c.Model,
		CallBackURL:  c.CallbackURL,
	}
	if req.CustomMode {
		req.Style = opts.Style
		req.Title = opts.Title
		if req.Title == "" {
			req.Title = "generated"
		}
	}

	var data struct {
		TaskID string `json:"taskId"`
	}
	if err := c.do(ctx, http.MethodPost, "generate", nil, req, &data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if data.TaskID == "" {
		err := fmt.Errorf("%w: missing taskId", ErrUnexpectedResponse)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("suno.task_id", data.TaskID))
	return data.TaskID, nil
}

// Track is one generated audio variant.
type Track struct {
	ID             string  `json:"id"`
	AudioURL       string  `json:"audioUrl"`
	SourceAudioURL string  `json:"sourceAudioUrl"`
	Title          string  `json:"title"`
	Duration       float64 `json:"duration"`
}

// URL returns the preferred download location, or "" if none.
func (t Track) URL() string {
	if t.SourceAudioURL != "" {
		return t.SourceAudioURL
	}
	return t.AudioURL
}

// TaskInfo is the status payload of a task.
type TaskInfo struct {
	TaskID   string `json:"taskId"`
	Status   string `json:"status"`
	Response struct {
		SunoData []Track `json:"sunoData"`
	} `json:"response"`
	ErrorMessage string `json:"errorMessage"`
}

// Tracks returns the generated variants, if any.
func (t *TaskInfo) Tracks() []Track {
	return t.Response.SunoData
}

// Poll fetches the current state of a task. A missing status reads as UNKNOWN.
func (c *Client) Poll(ctx context.Context, taskID string) (*TaskInfo, error) {
	ctx, span := tracer.Start(ctx, "suno.Poll", trace.WithAttributes(attribute.String("suno.task_id", taskID)))
	defer span.End()

	info := &TaskInfo{}
	query := url.Values{"taskId": {taskID}}
	if err := c.do(ctx, http.MethodGet, "generate/record-info", query, nil, info); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if info.Status == "" {
		info.Status = "UNKNOWN"
	}
	span.SetAttributes(attribute.String("suno.status", info.Status))
	return info, nil
}

// Download fetches rawURL into dest, creating parent directories as needed.
func (c *Client) Download(ctx context.Context, rawURL, dest string) error {
	ctx, span := tracer.Start(ctx, "suno.Download", trace.WithAttributes(attribute.String("suno.dest", dest)))
	defer span.End()

	err := c.download(ctx, rawURL, dest)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.DownloadClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download failed with status code %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	out, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(out.Name())

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("error writing %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Chmod(out.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(out.Name(), dest)
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	u := c.BaseURL + "/" + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		requestBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(requestBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error executing request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var env envelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if env.Code != codeOK {
		return fmt.Errorf("%w: code %d: %s", ErrUnexpectedResponse, env.Code, env.Msg)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %v", ErrUnexpectedResponse, err)
	}
	return nil
}
