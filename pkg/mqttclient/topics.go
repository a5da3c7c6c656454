package mqttclient

import "fmt"

// Topic suffixes. All topics are prefixed with the configured prefix
// (default: "parking").

// TopicLicensePlate carries recognized plates.
// Publishes: raw plate text
const TopicLicensePlate = "access/licensePlate"

// TopicStatus carries the agent's latest result.
// Publishes: retained JSON {plate, timestamp, status}
const TopicStatus = "access/lpr/status"

// Topics is a helper to build fully-qualified topic names.
type Topics struct {
	prefix string
}

// NewTopics creates a Topics helper with the given prefix.
func NewTopics(prefix string) *Topics {
	return &Topics{prefix: prefix}
}

// LicensePlate returns the full plate topic path.
func (t *Topics) LicensePlate() string {
	return fmt.Sprintf("%s/%s", t.prefix, TopicLicensePlate)
}

// Status returns the full status topic path.
func (t *Topics) Status() string {
	return fmt.Sprintf("%s/%s", t.prefix, TopicStatus)
}
