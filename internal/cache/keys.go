package cache

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	SyncQueueKey     = "queue:sync"
	SyncDeadQueueKey = "queue:sync:dead"
)

func TaskStatusKey(taskID uuid.UUID) string {
	return fmt.Sprintf("task:%s", taskID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
