package bus

import (
	"fmt"
)

func sequenceKey(topic string, partition int) string {
	return fmt.Sprintf("bus:%s:p%03d:sequence", topic, partition)
}

func partitionPrefix(topic string, partition int) string {
	return fmt.Sprintf("bus:%s:p%03d:pending:", topic, partition)
}

func pendingKey(topic string, partition int, sequence int64) string {
	return fmt.Sprintf("%s%020d", partitionPrefix(topic, partition), sequence)
}

func partitionLockKey(topic string, partition int) string {
	return fmt.Sprintf("%s:p%03d", topic, partition)
}

func deadLetterPrefix(topic string) string {
	return fmt.Sprintf("bus:%s:deadletter:", topic)
}

func deadLetterKey(topic, itemID string) string {
	return deadLetterPrefix(topic) + itemID
}

func quarantinePrefix() string {
	return "bus:quarantine:"
}

func quarantineKey(itemID string) string {
	return quarantinePrefix() + itemID
}
