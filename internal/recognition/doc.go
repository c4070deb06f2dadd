// Package recognition implements the streaming speech-to-text leg of a voice
// turn. It defines the binary audio frame format, a WebSocket client for the
// recognizer service, and the session state machine that owns frame delivery
// ordering and failure semantics.
package recognition
