// Package rest inserts readings into a PostgREST-style table endpoint.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/logger"
	"fieldsync/internal/model"
	"fieldsync/internal/syncer"

	"go.uber.org/zap"
)

type Inserter struct {
	endpoint string
	apiKey   string
	deviceID string
	client   *http.Client
}

type row struct {
	ID            string    `json:"id"`
	SourceID      string    `json:"source_id"`
	Value         float64   `json:"value"`
	EffectiveDate string    `json:"effective_date"`
	Comment       string    `json:"comment,omitempty"`
	CapturedAt    time.Time `json:"captured_at"`
	DeviceID      string    `json:"device_id"`
}

func NewInserter(cfg config.BackendConfig, deviceID string) (*Inserter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("backend url is not configured")
	}
	if cfg.ReadingsTable == "" {
		return nil, fmt.Errorf("backend readings table is not configured")
	}

	return &Inserter{
		endpoint: strings.TrimSuffix(cfg.URL, "/") + "/rest/v1/" + cfg.ReadingsTable,
		apiKey:   cfg.APIKey,
		deviceID: deviceID,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (i *Inserter) Insert(ctx context.Context, r model.Reading) error {
	body, err := json.Marshal(row{
		ID:            r.ID,
		SourceID:      r.SourceID,
		Value:         r.Value,
		EffectiveDate: r.EffectiveDate.Format(time.DateOnly),
		Comment:       r.Comment,
		CapturedAt:    r.CreatedAt.UTC(),
		DeviceID:      i.deviceID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal,resolution=ignore-duplicates")
	if i.apiKey != "" {
		req.Header.Set("apikey", i.apiKey)
		req.Header.Set("Authorization", "Bearer "+i.apiKey)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return syncer.Failure("insert reading", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Rows carry the queue id as primary key. A conflict means an earlier
	// attempt landed and only its response was lost.
	if resp.StatusCode == http.StatusConflict && r.ID != "" {
		logger.Log.Info("reading already inserted",
			zap.String("id", r.ID))
		return nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return syncer.Failure("insert reading",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	return nil
}
