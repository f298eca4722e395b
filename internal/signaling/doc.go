// Package signaling relays WebRTC negotiation and room presence between
// browser participants over WebSocket.
//
// Every connection gets a reader (the HTTP handler goroutine) and a writer
// goroutine draining a bounded outbox. Inbound frames are decoded into typed
// messages and applied by the Hub, which owns the presence registry and room
// table. Leaving a room and dropping the connection share one cleanup path.
package signaling
