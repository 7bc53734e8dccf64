package model

// HashValue is a SHA-256 hash stored as lowercase hex string.
type HashValue string

// Credential is the stored one-way digest of a PIN. The clear PIN is never
// persisted.
type Credential = HashValue

// PINLength is the number of digits in a PIN.
const PINLength = 4

// SensorKind identifies a periodic sample producer.
type SensorKind string

const (
	SensorLight         SensorKind = "light"
	SensorAccelerometer SensorKind = "accelerometer"
)

// Reading is one sample from a sensor stream. Light readings carry
// Illuminance (lux); accelerometer readings carry X/Y/Z.
type Reading struct {
	Kind        SensorKind `json:"kind"`
	Illuminance float64    `json:"illuminance,omitempty"`
	X           float64    `json:"x,omitempty"`
	Y           float64    `json:"y,omitempty"`
	Z           float64    `json:"z,omitempty"`
}
