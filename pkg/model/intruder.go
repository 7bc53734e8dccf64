package model

import "time"

// Location is a coordinate fix with an optional reverse-geocoded address.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// DeviceInfo is a snapshot of the device metadata taken at trigger time.
type DeviceInfo struct {
	Brand     string `json:"brand"`
	Model     string `json:"model"`
	OSName    string `json:"os_name"`
	OSVersion string `json:"os_version"`
}

// IntruderAttempt is written once per lockout trigger. ImageRef and Location
// are present only if the corresponding capability succeeded.
type IntruderAttempt struct {
	ID           string     `json:"id"`
	DeviceID     string     `json:"device_id"`
	AttemptCount int        `json:"attempt_count"`
	ImageRef     string     `json:"image_url,omitempty"`
	Location     *Location  `json:"location,omitempty"`
	DeviceInfo   DeviceInfo `json:"device_info"`
	Timestamp    time.Time  `json:"timestamp"`
}
