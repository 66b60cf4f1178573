package settlementfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/checkout-engine/pkg/outbox/registry"
)

// RetryPolicy bounds how long one insert is retried in process. Anything
// beyond that is left to Pub/Sub redelivery.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 250 * time.Millisecond
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(2*time.Second, p.InitialBackoff)
	}
	return p
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Writer streams settlement rows into BigQuery. Each row carries its event id
// as insert id, so a redelivery that slips past the idempotency claim is
// collapsed by BigQuery's best-effort dedup.
type Writer struct {
	client tableInserter
	table  string
	retry  RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewWriter(client tableInserter, table string, retry RetryPolicy) (*Writer, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	if table = strings.TrimSpace(table); table == "" {
		return nil, errors.New("settlement table is required")
	}
	return &Writer{client: client, table: table, retry: retry.withDefaults(), sleep: sleepCtx}, nil
}

// Write inserts rows as one streaming batch. Rows BigQuery rejects outright
// come back as a non-retryable error.
func (w *Writer) Write(ctx context.Context, rows ...SettlementRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := make([]any, len(rows))
	for i := range rows {
		batch[i] = &cbigquery.StructSaver{Struct: &rows[i], InsertID: rows[i].EventID}
	}

	delay := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.client.InsertRows(ctx, w.table, batch)
		if err == nil {
			return nil
		}
		err = fmt.Errorf("insert into %s (attempt %d): %w", w.table, attempt, err)
		if !transient(err) {
			return registry.NewNonRetryableError(err)
		}
		if attempt >= w.retry.MaxAttempts {
			return err
		}
		if err := w.sleep(ctx, delay); err != nil {
			return err
		}
		delay = min(2*delay, w.retry.MaximumBackoff)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// transient reports whether retrying could help. A batch is transient only
// when every row error inside it is.
func transient(err error) bool {
	var rowErrs cbigquery.PutMultiError
	if errors.As(err, &rowErrs) {
		for _, rowErr := range rowErrs {
			if !transient(rowErr.Errors) {
				return false
			}
		}
		return len(rowErrs) > 0
	}
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		for _, inner := range multi {
			if !transient(inner) {
				return false
			}
		}
		return len(multi) > 0
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal,
			codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

// encodeJSON stores a raw payload in a BigQuery JSON column.
func encodeJSON(raw json.RawMessage) cbigquery.NullJSON {
	if len(raw) == 0 {
		return cbigquery.NullJSON{}
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}
}
