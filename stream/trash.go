// Package stream propagates trash through ownership trees from DynamoDB
// Streams events.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/espalier/store"
)

// Handler processes DynamoDB stream events for cascading trash.
type Handler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(s *store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		logger: logger,
	}
}

// HandleCascadeTrash copies a newly set TTL from each trashed record to the
// records it owns. Each owned record's own stream event then carries the
// TTL one level further down. It is meant to be used as a Lambda handler
// on the kind tables' streams.
func (h *Handler) HandleCascadeTrash(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // retried by Lambda, eventually DLQ
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != "MODIFY" {
		return nil
	}

	oldTTL := getNumberAttr(record.Change.OldImage, "ttl")
	newTTL := getNumberAttr(record.Change.NewImage, "ttl")
	if oldTTL != 0 || newTTL == 0 {
		return nil
	}

	entityRef := getStringAttr(record.Change.NewImage, "entity_ref")
	if entityRef == "" {
		h.logger.Debug("skipping unmanaged record", "eventID", record.EventID)
		return nil
	}
	parentRef := getStringAttr(record.Change.NewImage, "parent_ref")

	h.logger.Info("processing cascade trash",
		"entityRef", entityRef,
		"parentRef", parentRef,
		"ttl", newTTL,
	)

	// Trashed children are included; SetTTLByKey leaves them alone.
	children, err := h.store.QueryAllChildren(ctx, entityRef)
	if err != nil {
		return fmt.Errorf("query children of %s: %w", entityRef, err)
	}

	var errs []error
	for _, child := range children {
		if err := h.store.SetTTLByKey(ctx, child.TableName, child.Key, newTTL); err != nil {
			h.logger.Warn("failed to set TTL on child",
				"child", child.Ref,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("trash %s: %w", child.Ref, err))
		}
	}

	if parentRef != "" {
		if err := h.store.SetRelationshipTTL(ctx, entityRef, parentRef, newTTL); err != nil {
			h.logger.Warn("failed to set relationship TTL",
				"entity", entityRef,
				"parent", parentRef,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("relationship %s: %w", entityRef, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	h.logger.Info("cascade trash completed",
		"entityRef", entityRef,
		"childrenProcessed", len(children),
	)
	return nil
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts an integer attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeNumber {
		n, _ := strconv.ParseInt(v.Number(), 10, 64)
		return n
	}
	return 0
}
