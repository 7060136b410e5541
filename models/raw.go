package models

import "encoding/base64"

// RawEncoding tells a consumer how to interpret RawPayload.Data.
type RawEncoding string

const (
	RawText   RawEncoding = "text"
	RawBase64 RawEncoding = "base64"
)

// RawPayload is the original frame attached to an event on request. It is
// built only through NewTextRaw and NewBinaryRaw so the encoding tag never
// appears without data.
type RawPayload struct {
	Encoding    RawEncoding `json:"encoding"`
	Data        string      `json:"data"`
	MessageType string      `json:"messageType,omitempty"`
}

func NewTextRaw(text, messageType string) *RawPayload {
	return &RawPayload{Encoding: RawText, Data: text, MessageType: messageType}
}

func NewBinaryRaw(b []byte, messageType string) *RawPayload {
	return &RawPayload{Encoding: RawBase64, Data: base64.StdEncoding.EncodeToString(b), MessageType: messageType}
}

// Bytes decodes the payload back to the bytes that were received.
func (r *RawPayload) Bytes() ([]byte, error) {
	if r.Encoding == RawBase64 {
		return base64.StdEncoding.DecodeString(r.Data)
	}
	return []byte(r.Data), nil
}
