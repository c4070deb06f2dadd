// Package audio handles microphone capture, PCM-16 encoding, and WAV format
// conversion. It implements a push-style capture source backed by PortAudio,
// a fixed-size frame assembler feeding the recognition pipeline, a small ring
// buffer decoupling the device callback from the encoder, and an RMS level
// meter driving the recording visualizer.
package audio
