package services

import (
	"crypto/sha256"
	"fmt"
)

var (
	interestCategories = [...]string{"entertainment", "education", "lifestyle", "sports", "technology"}
	ageBrackets        = [...]string{"13-17", "18-25", "26-35", "36-50", "50+"}
)

// ExtractSafeDerivative reduces a raw payload to a coarse, non-identifying
// label. It is deterministic: the first two bytes of the payload's SHA-256
// select the interest category and the age bracket.
func ExtractSafeDerivative(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	category := interestCategories[int(sum[0])%len(interestCategories)]
	bracket := ageBrackets[int(sum[1])%len(ageBrackets)]
	return fmt.Sprintf("category:%s,bracket:%s", category, bracket)
}
