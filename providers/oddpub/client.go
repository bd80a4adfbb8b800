package oddpub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"dsst-etl/config"
	"dsst-etl/models"
)

// ErrAnalysisService kennzeichnet jeden Fehler des Analyse-Dienstes.
var ErrAnalysisService = errors.New("analysis service error")

// ServiceError beschreibt eine fehlgeschlagene Analyse (Status != 2xx oder unlesbare Antwort).
type ServiceError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ServiceError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("oddpub: status %d: %v", e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("oddpub: %v", e.Err)
	default:
		return fmt.Sprintf("oddpub: status %d: %s", e.StatusCode, e.Body)
	}
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) Is(target error) bool { return target == ErrAnalysisService }

// Client ruft den ODDPub-Dienst auf.
type Client struct {
	Config     *config.Config
	Logger     *zap.Logger
	HTTPClient *http.Client
}

// NewClient erstellt einen neuen ODDPub-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		Config:     cfg,
		Logger:     logger,
		HTTPClient: &http.Client{Timeout: cfg.OddpubTimeout},
	}
}

// Name gibt den Namen des Dienstes zurück.
func (c *Client) Name() string {
	return "oddpub"
}

// Analyze schickt die Datei als Multipart-Feld "file" an {base}/oddpub.
func (c *Client) Analyze(ctx context.Context, filename string, payload []byte) (*models.AnalysisResult, error) {
	url := strings.TrimRight(c.Config.OddpubHostAPI, "/") + "/oddpub"
	log := c.Logger.With(zap.String("file", filename), zap.String("url", url))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(payload); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	log.Debug("Sending file to oddpub", zap.Int("bytes", len(payload)))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &ServiceError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Body: excerpt(raw)}
	}

	var parsed Response
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&parsed); err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if err := parsed.validate(); err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Err: err}
	}

	result := parsed.toModel()
	result.RawResponse = datatypes.JSON(raw)
	log.Info("Oddpub analysis finished", zap.String("article", result.Article), zap.Bool("is_open_data", result.IsOpenData), zap.Bool("is_open_code", result.IsOpenCode))
	return result, nil
}

func excerpt(b []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
