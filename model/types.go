package model

import (
	"encoding/base64"
	"strings"
)

// AudioChunk represents a chunk of audio data.
type AudioChunk []byte

// AudioSource tells a transcriber where to find audio: either a URL the
// remote engine can fetch, or the bytes themselves.
type AudioSource struct {
	URL      string
	Data     []byte
	MIMEType string
}

// InlineAudio wraps captured bytes that have no public URL.
func InlineAudio(data []byte, mimeType string) AudioSource {
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	return AudioSource{Data: data, MIMEType: mimeType}
}

// RemoteAudio references audio that is already hosted somewhere.
func RemoteAudio(url string) AudioSource {
	return AudioSource{URL: strings.TrimSpace(url)}
}

func (a AudioSource) IsInline() bool {
	return a.URL == ""
}

// DataURI encodes inline audio as a base64 data URI.
func (a AudioSource) DataURI() string {
	return "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// Reference returns the value sent to an engine that accepts either form.
func (a AudioSource) Reference() string {
	if a.IsInline() {
		return a.DataURI()
	}
	return a.URL
}
