// Package device binds the audio pipeline to real hardware through
// PortAudio. The microphone implements capture.Source; the speaker
// implements playback.Sink.
package device

import "github.com/gordonklaus/portaudio"

// Initialize sets up the PortAudio runtime. Call once at startup,
// before opening any microphone or speaker.
func Initialize() error {
	return portaudio.Initialize()
}

// Terminate releases the PortAudio runtime. Call once at shutdown,
// after all streams are closed.
func Terminate() error {
	return portaudio.Terminate()
}
