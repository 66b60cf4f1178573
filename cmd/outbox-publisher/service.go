package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/config"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
	"github.com/angelmondragon/checkout-engine/pkg/metrics"
	"github.com/angelmondragon/checkout-engine/pkg/outbox"
	"github.com/angelmondragon/checkout-engine/pkg/outbox/registry"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 10
	batchPublishTimeout = 15 * time.Second
	maxIdleBackoff      = 10 * time.Second
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// publisher is the slice of *pubsub.Publisher the relay needs. Messages
// carry the aggregate id as ordering key, so a failed publish pauses that
// key until ResumePublish.
type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            dbClient
	PubSub        pubSubClient
	Repository    outboxRepository
	Registry      registryResolver
	DLQRepository dlqRepository
	// Metrics is optional.
	Metrics *metrics.OutboxMetrics
	// Publishers overrides topic lookup, mainly for tests.
	Publishers func(topic string) publisher
}

// Service relays committed outbox rows to Pub/Sub. Each poll claims a batch
// inside one transaction, submits every message before waiting on any
// result, then records the outcome per row.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	pubsub       pubSubClient
	repo         outboxRepository
	registry     registryResolver
	dlq          dlqRepository
	metrics      *metrics.OutboxMetrics
	publishers   func(topic string) publisher
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("outbox relay: config required")
	case params.Logger == nil:
		return nil, errors.New("outbox relay: logger required")
	case params.DB == nil:
		return nil, errors.New("outbox relay: database required")
	case params.PubSub == nil:
		return nil, errors.New("outbox relay: pubsub client required")
	case params.Repository == nil:
		return nil, errors.New("outbox relay: repository required")
	case params.Registry == nil:
		return nil, errors.New("outbox relay: event registry required")
	case params.DLQRepository == nil:
		return nil, errors.New("outbox relay: dlq repository required")
	}

	cfg := params.Config.Outbox
	svc := &Service{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		repo:         params.Repository,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		metrics:      params.Metrics,
		publishers:   params.Publishers,
		batchSize:    positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		now:          time.Now,
	}
	if svc.pollInterval <= 0 {
		svc.pollInterval = defaultPollInterval
	}
	if svc.publishers == nil {
		svc.publishers = topicPublishers(params.PubSub)
	}
	return svc, nil
}

// topicPublishers keeps one ordered publisher per topic; each runs its own
// batching goroutines.
func topicPublishers(client pubSubClient) func(string) publisher {
	cache := map[string]publisher{}
	return func(topic string) publisher {
		if pub, ok := cache[topic]; ok {
			return pub
		}
		raw := client.Publisher(topic)
		if raw == nil {
			return nil
		}
		raw.EnableMessageOrdering = true
		pub := gcpPublisher{raw}
		cache[topic] = pub
		return pub
	}
}

// Run polls until ctx is canceled. Busy batches are followed immediately by
// the next poll; failures back off exponentially up to maxIdleBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s not reachable: %w", name, err)
		}
	}
	s.logg.Info(ctx, "outbox relay ready")

	wait := s.pollInterval
	for {
		claimed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox relay batch failed", err)
			wait = min(2*wait, maxIdleBackoff)
		case claimed:
			wait = s.pollInterval
			if ctx.Err() == nil {
				continue
			}
		default:
			wait = s.pollInterval
		}
		if err := sleepCtx(ctx, jittered(wait)); err != nil {
			s.logg.Info(ctx, "outbox relay stopping")
			return err
		}
	}
}

// delivery tracks one claimed row through submit and settle.
type delivery struct {
	event  models.OutboxEvent
	topic  string
	pub    publisher
	result publishResult
	err    error
}

type batchTally struct {
	published, retrying, deadLettered int
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var claimed bool
	started := s.now()
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		claimed = true

		publishCtx, cancel := context.WithTimeout(ctx, batchPublishTimeout)
		defer cancel()

		deliveries := make([]*delivery, 0, len(events))
		for _, event := range events {
			deliveries = append(deliveries, s.submit(publishCtx, event))
		}

		var tally batchTally
		for _, d := range deliveries {
			if d.err == nil {
				_, d.err = d.result.Get(publishCtx)
			}
			if err := s.settle(ctx, tx, d, &tally); err != nil {
				return err
			}
		}

		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"claimed":       len(events),
			"published":     tally.published,
			"retrying":      tally.retrying,
			"dead_lettered": tally.deadLettered,
		}), "outbox batch relayed")
		return nil
	})
	if claimed {
		s.metrics.ObserveBatch(s.now().Sub(started))
	}
	return claimed, err
}

func (s *Service) submit(ctx context.Context, event models.OutboxEvent) *delivery {
	d := &delivery{event: event}
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		d.err = registry.NewNonRetryableError(err)
		return d
	}
	d.topic = resolved.Descriptor.Topic
	d.pub = s.publishers(d.topic)
	if d.pub == nil {
		d.err = registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", d.topic))
		return d
	}

	d.result = d.pub.Publish(ctx, &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if d.result == nil {
		d.err = registry.NewNonRetryableError(fmt.Errorf("publisher for %q returned no result", d.topic))
	}
	return d
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, d *delivery, tally *batchTally) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      d.event.ID.String(),
		"event_type":     d.event.EventType,
		"aggregate_type": d.event.AggregateType,
		"aggregate_id":   d.event.AggregateID.String(),
		"topic":          d.topic,
		"attempt_count":  d.event.AttemptCount + 1,
	})

	if d.err == nil {
		tally.published++
		s.metrics.Inc(string(d.event.EventType), metrics.OutboxPublished)
		if err := s.repo.MarkPublishedTx(tx, d.event.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", d.event.ID, err)
		}
		s.logg.Debug(ctx, "outbox event published")
		return nil
	}

	if d.pub != nil {
		d.pub.ResumePublish(d.event.AggregateID.String())
	}

	if isPermanent(d.err) {
		tally.deadLettered++
		return s.deadLetter(ctx, tx, d.event, enums.OutboxDLQReasonNonRetryable, d.err)
	}
	if d.event.AttemptCount+1 >= s.maxAttempts {
		tally.deadLettered++
		return s.deadLetter(ctx, tx, d.event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", s.maxAttempts, d.err))
	}

	tally.retrying++
	s.metrics.Inc(string(d.event.EventType), metrics.OutboxRetrying)
	s.logg.Warn(s.logg.WithField(ctx, "error", d.err.Error()), "outbox publish failed, will retry")
	if err := s.repo.MarkFailedTx(tx, d.event.ID, d.err); err != nil {
		return fmt.Errorf("mark %s failed: %w", d.event.ID, err)
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	s.metrics.Inc(string(event.EventType), metrics.OutboxDeadLettered)
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"error":        cause.Error(),
		"error_reason": reason,
	}), "outbox event dead-lettered")

	entry := outbox.NewDLQEntry(event, reason, cause, s.now())
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("dead-letter %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark %s terminal: %w", event.ID, err)
	}
	return nil
}

// isPermanent reports failures no retry can fix: rows the registry rejects,
// and gRPC errors such as a deleted topic or a rejected message.
func isPermanent(err error) bool {
	if registry.IsPermanent(err) {
		return true
	}
	switch status.Code(err) {
	case codes.NotFound, codes.PermissionDenied, codes.InvalidArgument:
		return true
	}
	return false
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// jittered spreads replicas that start together by up to a quarter of d.
func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(d/4+1)
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

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
