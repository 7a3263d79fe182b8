package service

import (
	"context"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/events"
	"slotkeeper/pkg/kafka"
	"slotkeeper/pkg/logger"
	"strings"
)

// HoldEventHandler feeds hold domain events from Kafka into the aggregator.
func HoldEventHandler(svc AlertService, log *logger.Logger) kafka.MessageHandler {
	log = log.Component("hold_event_consumer")
	return func(ctx context.Context, msg kafka.Message) error {
		env, err := events.DecodeEnvelope(msg)
		if err != nil {
			return err
		}
		if !strings.HasPrefix(env.Type, "hold.") {
			log.Debug("Skipping non-hold event", "event_type", env.Type, "event_id", env.ID)
			return nil
		}

		var payload events.HoldPayload
		if err := env.DecodePayload(&payload); err != nil {
			return err
		}
		_, err = svc.Observe(ctx, &payload.Hold)
		if apperrors.IsCode(err, apperrors.CodeInternal) {
			return kafka.NewTransientError("demand alert aggregation failed", err)
		}
		return err
	}
}
