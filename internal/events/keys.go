package events

import "strconv"

// Kafka topics and headers used by the ingestion pipeline.
const (
	// TopicMessages is the default topic for normalized chat messages.
	TopicMessages = "telegram_messages"

	// HeaderRunID carries the id of the ingestion run that produced a record.
	HeaderRunID = "ingest-run-id"
)

// PartitionKey returns the record key used for partition affinity: the
// stringified sender id, or nil (broker default partitioning) when the
// message has no sender.
func PartitionKey(senderID *int64) []byte {
	if senderID == nil {
		return nil
	}
	return []byte(strconv.FormatInt(*senderID, 10))
}

// ParsePartitionKey is the inverse of PartitionKey. An empty key yields nil.
func ParsePartitionKey(key []byte) (*int64, error) {
	if len(key) == 0 {
		return nil, nil
	}
	id, err := strconv.ParseInt(string(key), 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
