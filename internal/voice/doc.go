// Package voice wires capture, recognition, chat streaming, reconciliation
// and playback into the conversation controller. The controller owns at
// most one live capture and recognition session at a time and drives a
// full turn from microphone press to committed messages.
package voice
