package gadget

// GATT layout of the Smart Humigadget firmware.
const (
	LocalName = "Smart Humigadget"

	TemperatureServiceUUID = "00002234-b38d-4985-720e-0f993a68ee41"
	HumidityServiceUUID    = "00001234-b38d-4985-720e-0f993a68ee41"
	BatteryServiceUUID     = "180f"
	LoggingServiceUUID     = "0000f234-b38d-4985-720e-0f993a68ee41"
)

// Attribute handle offsets relative to a characteristic value handle.
const (
	// Float channels carry a user description right after the value and
	// the configuration descriptor after that.
	floatDescriptionOffset  = 1
	floatSubscriptionOffset = 2

	// Battery has no description; its configuration descriptor follows the value.
	batterySubscriptionOffset = 1

	loggingDescriptionOffset = 1
)
