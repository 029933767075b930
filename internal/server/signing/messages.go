package signing

import "fmt"

// Canonical messages. Each signature in the enclave covers exactly one of
// these strings; verifiers rebuild them from the published fields.

func CountMessage(count int64, timestamp string) string {
	return fmt.Sprintf("count:%d|timestamp:%s", count, timestamp)
}

func DataReceivedMessage(userIDHash, safeDerivative, timestamp string) string {
	return fmt.Sprintf("action:data_received|user_id:%s|safe_derivative:%s|timestamp:%s", userIDHash, safeDerivative, timestamp)
}

func DeletionMessage(userIDHash, timestamp, composeHash string) string {
	return fmt.Sprintf("deletion|user:%s|time:%s|compose:%s", userIDHash, timestamp, composeHash)
}
