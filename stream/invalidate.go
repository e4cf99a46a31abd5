// Package stream provides a DynamoDB Streams handler that turns committed
// node mutations into cache invalidations keyed by website.
//
// The tree engine itself holds no cache; external layers that cache
// getTree-style projections subscribe to the node table's stream and drop
// their entry for a website whenever any of its rows change. The handler is
// designed to run as an AWS Lambda function.
package stream

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
)

// Invalidator is the external cache being kept coherent.
type Invalidator interface {
	// InvalidateWebsite drops any cached projection of the website's tree.
	// It must be idempotent; the handler retries failed batches.
	InvalidateWebsite(ctx context.Context, websiteID string) error
}

// Handler processes DynamoDB stream events from the node table.
type Handler struct {
	invalidator Invalidator
	logger      *slog.Logger
}

// NewHandler creates a stream handler.
func NewHandler(inv Invalidator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		invalidator: inv,
		logger:      logger,
	}
}

// HandleInvalidation invalidates each website touched by the batch exactly
// once. This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleInvalidation(ctx context.Context, event events.DynamoDBEvent) error {
	seen := make(map[string]struct{})
	for _, record := range event.Records {
		websiteID := websiteIDFromRecord(record)
		if websiteID == "" {
			h.logger.Warn("stream record without website_id",
				"eventID", record.EventID,
				"eventName", record.EventName,
			)
			continue
		}
		if _, done := seen[websiteID]; done {
			continue
		}
		seen[websiteID] = struct{}{}

		if err := h.invalidator.InvalidateWebsite(ctx, websiteID); err != nil {
			h.logger.Error("failed to invalidate website cache",
				"websiteID", websiteID,
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
		h.logger.Info("invalidated website cache",
			"websiteID", websiteID,
		)
	}
	return nil
}

// websiteIDFromRecord extracts the owning website from a stream record.
// Removals only carry an old image.
func websiteIDFromRecord(record events.DynamoDBEventRecord) string {
	image := record.Change.NewImage
	if record.EventName == "REMOVE" {
		image = record.Change.OldImage
	}
	return getStringAttr(image, "website_id")
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}
