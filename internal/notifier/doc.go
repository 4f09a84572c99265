// Package notifier posts short operator messages about observing sessions.
//
// Messages are queued and delivered by a small worker pool through a Sender
// (the Telegram chat in production). Delivery is rate limited, retried with
// jittered backoff and deduplicated over a short window so a burst of
// identical warnings becomes one message.
//
// Watch turns session lifecycle events from the event bus into messages.
// The Service also satisfies logx.Sender so the remote log sink can share
// the same queue.
package notifier
