package storage

import (
	"fmt"
)

func stockKey(code string, sourceID int64) string {
	return fmt.Sprintf("%d|%s", sourceID, code)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
