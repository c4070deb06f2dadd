// Package chat consumes the streaming chat service. It opens one
// server-sent event stream per conversation turn and applies the stream's
// start/chunk/audio/end/error events to the turn as they arrive.
package chat
