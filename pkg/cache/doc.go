// Package cache provides a generic, thread-safe LRU cache with optional TTL.
//
//	types := cache.NewLRU[string, *notify.NotificationType](256, cache.WithTTL(time.Minute))
//	types.Put("task.assigned", t)
//	if t, ok := types.Get("task.assigned"); ok {
//		// ...
//	}
package cache
