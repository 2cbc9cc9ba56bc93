package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/pcahill/chartroom/internal/chat"
	"github.com/pcahill/chartroom/internal/config"
)

// maxResponseBytes bounds how much of the sheets response is read.
const maxResponseBytes = 2 << 20

// sourceTitle labels every import run.
const sourceTitle = "Google sheet"

// worksheets names the sheet tabs fetched on refresh.
const worksheets = "LineGraph,Rank"

// Sink receives the converted questions of an import run.
type Sink interface {
	CreateSource(ctx context.Context, title string, at time.Time) (string, error)
	Save(ctx context.Context, sourceID, category string, data []byte) (*chat.Question, error)
}

// Importer fetches worksheet columns from the sheets endpoint and stores the
// converted questions under a fresh source.
type Importer struct {
	client *http.Client
	cfg    config.SheetsConfig
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

// NewImporter constructs an importer. client may be nil to use a default
// with a sane timeout.
func NewImporter(client *http.Client, cfg config.SheetsConfig, sink Sink, logger *zap.Logger) *Importer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Importer{client: client, cfg: cfg, sink: sink, logger: logger, now: time.Now}
}

type sheetResponse struct {
	Data struct {
		SpreadsheetID string       `json:"spreadsheetId"`
		ValueRanges   []ValueRange `json:"valueRanges"`
	} `json:"data"`
}

type sheetError struct {
	Message string `json:"message"`
}

// Refresh fetches the configured spreadsheet, converts every supported
// worksheet, and stores the results under a new question source. Worksheets
// that fail conversion are logged and skipped; the rest still import.
// Returns the number of questions stored.
func (i *Importer) Refresh(ctx context.Context) (int, error) {
	ranges, err := i.fetch(ctx)
	if err != nil {
		return 0, err
	}

	var converted []Converted
	for _, vr := range ranges {
		qs, err := ConvertValueRange(vr)
		if err != nil {
			i.logger.Warn("skipping worksheet",
				zap.String("range", vr.Range), zap.Error(err))
			continue
		}
		converted = append(converted, qs...)
	}

	sourceID, err := i.sink.CreateSource(ctx, sourceTitle, i.now())
	if err != nil {
		return 0, fmt.Errorf("creating question source: %w", err)
	}

	stored := 0
	for _, q := range converted {
		data, err := json.Marshal(q.Data)
		if err != nil {
			return stored, fmt.Errorf("encoding question: %w", err)
		}
		if _, err := i.sink.Save(ctx, sourceID, q.Category, data); err != nil {
			return stored, fmt.Errorf("storing question: %w", err)
		}
		stored++
	}

	i.logger.Info("question bank refreshed",
		zap.String("source", sourceID), zap.Int("questions", stored))
	return stored, nil
}

func (i *Importer) fetch(ctx context.Context) ([]ValueRange, error) {
	endpoint, err := url.Parse(i.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing sheets endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("worksheets", worksheets)
	if i.cfg.FileID != "" {
		q.Set("file", i.cfg.FileID)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building sheets request: %w", err)
	}
	req.Header.Set("x-api-key", i.cfg.APIKey)

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching sheets: %w", err)
	}
	defer resp.Body.Close()
	body := io.LimitReader(resp.Body, maxResponseBytes)

	if resp.StatusCode != http.StatusOK {
		var se sheetError
		if err := json.NewDecoder(body).Decode(&se); err != nil || se.Message == "" {
			return nil, fmt.Errorf("sheets endpoint returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("sheets endpoint returned status %d: %s", resp.StatusCode, se.Message)
	}

	var sr sheetResponse
	if err := json.NewDecoder(body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding sheets response: %w", err)
	}
	return sr.Data.ValueRanges, nil
}
