package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/checkout-engine/pkg/config"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("bigquery: gcp project id is required")
	errDatasetRequired      = errors.New("bigquery: dataset is required")
	errTableNameRequired    = errors.New("bigquery: table name is required")
	errClientNotInitialized = errors.New("bigquery: client not initialized")
)

// Table describes a table the client writes to. Schema is only needed when
// the client is allowed to create missing tables.
type Table struct {
	Name           string
	Schema         bigquery.Schema
	PartitionField string
}

// Client streams settlement rows into one dataset.
type Client struct {
	client       *bigquery.Client
	dataset      *bigquery.Dataset
	createTables bool
	tables       []string
}

// NewClient connects to the configured project and confirms the dataset is
// reachable. Tables are checked by EnsureTable.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}

	raw, err := bigquery.NewClient(ctx, projectID, credentials(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("bigquery: new client: %w", err)
	}
	c := &Client{
		client:       raw,
		dataset:      raw.Dataset(datasetID),
		createTables: cfg.CreateTables,
	}
	if err := c.checkDataset(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project": projectID,
			"dataset": datasetID,
		}), "bigquery client initialized")
	}
	return c, nil
}

func credentials(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// EnsureTable verifies def.Name exists, creating it day-partitioned on
// def.PartitionField when table creation is enabled. Verified tables are
// rechecked by Ping.
func (c *Client) EnsureTable(ctx context.Context, def Table) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return errTableNameRequired
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	table := c.dataset.Table(name)
	_, err := table.Metadata(ctx)
	switch {
	case err == nil:
	case !isNotFound(err):
		return fmt.Errorf("bigquery: table %q: %w", name, err)
	case !c.createTables || len(def.Schema) == 0:
		return fmt.Errorf("bigquery: table %q does not exist", name)
	default:
		meta := &bigquery.TableMetadata{Schema: def.Schema}
		if def.PartitionField != "" {
			meta.TimePartitioning = &bigquery.TimePartitioning{
				Type:  bigquery.DayPartitioningType,
				Field: def.PartitionField,
			}
		}
		if err := table.Create(ctx, meta); err != nil && !isConflict(err) {
			return fmt.Errorf("bigquery: create table %q: %w", name, err)
		}
	}
	c.tables = append(c.tables, name)
	return nil
}

func (c *Client) checkDataset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("bigquery: dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("bigquery: dataset %q: %w", c.dataset.DatasetID, err)
	}
	return nil
}

// Ping checks the dataset and every table passed to EnsureTable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	if err := c.checkDataset(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	for _, name := range c.tables {
		if _, err := c.dataset.Table(name).Metadata(ctx); err != nil {
			return fmt.Errorf("bigquery: table %q: %w", name, err)
		}
	}
	return nil
}

// InsertRows streams rows into table. Rows are structs with bigquery tags or
// bigquery.ValueSaver values.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	return apiCode(err) == http.StatusNotFound
}

func isConflict(err error) bool {
	return apiCode(err) == http.StatusConflict
}

func apiCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code
	}
	return 0
}
