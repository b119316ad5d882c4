// Package realtime maintains the websocket subscription to the
// backend's auth event stream, reconnecting with capped exponential
// backoff and handing decoded events to the session listener.
package realtime
