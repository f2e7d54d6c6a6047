package mqtt

import (
	"fmt"
	"strings"
)

// maxTopicLength is the MQTT limit for a UTF-8 encoded topic string.
const maxTopicLength = 65535

// validatePublishTopic rejects topics a broker would refuse as a publish
// target: empty, oversized, or containing wildcards.
func validatePublishTopic(topic string) error {
	if err := validateTopicFilter(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in publish topic %q", ErrInvalidTopic, topic)
	}
	return nil
}

// validateTopicFilter rejects subscription filters that are empty, oversized
// or contain a NUL byte.
func validateTopicFilter(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: topic exceeds %d bytes", ErrInvalidTopic, maxTopicLength)
	}
	if strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: topic contains NUL", ErrInvalidTopic)
	}
	return nil
}
