// Package notify is the notification delivery engine.
//
// A Service fans an event out to the subscribers of a notification type,
// creates one Notification per recipient and channel, and either delivers it
// right away or adds it to the recipient's open Batch when their preference
// asks for a digest (or when the send falls into their quiet hours).
// Deliveries go through a DeliveryService, which claims a notification,
// renders it, signs action links into it and hands it to the Channel
// registered for it in the Registry. The Flusher releases due batches as a
// single digest.
//
// Actions are performed through an ActionService, either by an
// authenticated caller or with a signed token from an action link. Each
// (notification, action) pair is recorded once, so replays are reported as
// duplicates and never run the ActionHandler twice.
//
// Storage is behind small interfaces. MemoryStorage serves tests and
// single-process use; pgstore and redisstore provide the production
// backends.
//
//	svc := notify.NewService(store, catalog, prefs, users, delivery, registry)
//	res, err := svc.Send(ctx, notify.SendRequest{
//		TenantID: tenantID,
//		TypeID:   "task.assigned",
//		Payload:  map[string]any{"title": "Review PR"},
//	})
package notify
