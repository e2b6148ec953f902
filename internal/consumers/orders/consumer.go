package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvega/clienthub-backend/internal/customers"
	pkgerrors "github.com/dvega/clienthub-backend/pkg/errors"
	"github.com/dvega/clienthub-backend/pkg/logger"
	"github.com/dvega/clienthub-backend/pkg/metrics"
)

const aggregateJob = "order_aggregates"

type aggregateApplier interface {
	UpdateAggregates(ctx context.Context, tenantID, id uuid.UUID, input customers.AggregateUpdateInput) (*customers.CustomerDTO, error)
}

// aggregatePayload is the order-subsystem push of fresh customer aggregates.
type aggregatePayload struct {
	TenantID    uuid.UUID       `json:"tenant_id"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	TotalOrders int             `json:"total_orders"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
	LastOrderAt *time.Time      `json:"last_order_at,omitempty"`
}

// Consumer applies order-aggregate events to customer records.
type Consumer struct {
	service      aggregateApplier
	subscription *pubsub.Subscriber
	logg         *logger.Logger
	jobs         *metrics.JobMetrics
}

// NewConsumer constructs a consumer that watches the orders subscription.
func NewConsumer(service aggregateApplier, subscription *pubsub.Subscriber, logg *logger.Logger, jobs *metrics.JobMetrics) (*Consumer, error) {
	if service == nil {
		return nil, errors.New("customer service is required")
	}
	if subscription == nil {
		return nil, errors.New("orders subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		service:      service,
		subscription: subscription,
		logg:         logg,
		jobs:         jobs,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	started := time.Now()
	logCtx := c.logg.WithFields(ctx, map[string]any{"message_id": msg.ID})

	var payload aggregatePayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to unmarshal order aggregate payload", err)
		c.jobs.IncFailure(aggregateJob)
		return processResult{ack: true}
	}
	if payload.TenantID == uuid.Nil || payload.CustomerID == uuid.Nil {
		c.logg.Error(logCtx, "order aggregate payload missing ids", errors.New("empty tenant or customer id"))
		c.jobs.IncFailure(aggregateJob)
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"tenant_id":   payload.TenantID,
		"customer_id": payload.CustomerID,
	})

	_, err := c.service.UpdateAggregates(logCtx, payload.TenantID, payload.CustomerID, customers.AggregateUpdateInput{
		TotalOrders: payload.TotalOrders,
		TotalSpent:  payload.TotalSpent,
		LastOrderAt: payload.LastOrderAt,
	})
	if err != nil {
		typed := pkgerrors.As(err)
		// Transient store failures are retried; bad or stale payloads are not.
		if typed != nil && (typed.Code() == pkgerrors.CodeNotFound || typed.Code() == pkgerrors.CodeValidation) {
			c.logg.Warn(logCtx, "dropping unprocessable order aggregate event")
			c.jobs.IncFailure(aggregateJob)
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "failed to apply order aggregates", err)
		c.jobs.IncFailure(aggregateJob)
		return processResult{nack: true}
	}

	c.jobs.ObserveDuration(aggregateJob, time.Since(started))
	c.jobs.IncSuccess(aggregateJob)
	c.logg.Info(logCtx, "order aggregates applied")
	return processResult{ack: true}
}
