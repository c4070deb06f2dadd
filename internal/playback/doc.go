// Package playback plays synthesized audio payloads. Payloads queue FIFO
// behind a single worker so at most one plays at a time; decode and device
// failures are logged and never propagate into the conversation flow.
package playback
