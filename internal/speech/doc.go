// Package speech announces operator-facing text.
//
// Every message is written to the console. When speech is enabled the text is
// also handed to speech-dispatcher through the spd-say command.
package speech
