package gadget

import (
	"context"
	"fmt"

	"github.com/srg/smartgadget/internal/device"
	"github.com/srg/smartgadget/internal/gatt"
)

// LoggingService exposes the gadget's history logger controls.
type LoggingService struct {
	SyncTimeMs          *gatt.Characteristic
	OldestTimestampMs   *gatt.Characteristic
	NewestTimestampMs   *gatt.Characteristic
	StartLoggerDownload *gatt.Characteristic
	LoggerIntervalMs    *gatt.Characteristic
}

// NewLoggingService creates the unbound logging characteristics.
func NewLoggingService() *LoggingService {
	desc := gatt.WithDescriptionOffset(loggingDescriptionOffset)
	return &LoggingService{
		SyncTimeMs:          gatt.NewCharacteristic(gatt.Uint64, desc),
		OldestTimestampMs:   gatt.NewCharacteristic(gatt.Uint64, desc),
		NewestTimestampMs:   gatt.NewCharacteristic(gatt.Uint64, desc),
		StartLoggerDownload: gatt.NewCharacteristic(gatt.Uint8, desc),
		LoggerIntervalMs:    gatt.NewCharacteristic(gatt.Uint32, desc),
	}
}

// Characteristics returns the characteristics in the order the gadget
// declares them.
func (l *LoggingService) Characteristics() []*gatt.Characteristic {
	return []*gatt.Characteristic{
		l.SyncTimeMs,
		l.OldestTimestampMs,
		l.NewestTimestampMs,
		l.StartLoggerDownload,
		l.LoggerIntervalMs,
	}
}

// Bind binds the characteristics positionally to the discovered ones.
func (l *LoggingService) Bind(ctx context.Context, t device.Transport, refs []device.CharacteristicRef) error {
	chars := l.Characteristics()
	if len(refs) < len(chars) {
		return fmt.Errorf("logging service: expected %d characteristics, discovered %d", len(chars), len(refs))
	}
	for i, c := range chars {
		if err := c.Bind(ctx, t, refs[i]); err != nil {
			return fmt.Errorf("logging service: %w", err)
		}
	}
	return nil
}

func (l *LoggingService) Description() string {
	return "Logging Service"
}
