// Package wire holds decoding helpers shared by the venue translators.
// Venues are inconsistent about quoting numbers, so every numeric type here
// accepts both "1.5" and 1.5.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"cryptoconnect/internal/translator"
	"cryptoconnect/internal/transport"
	"cryptoconnect/models"
)

var null = []byte("null")

func unquote(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		return b[1 : len(b)-1]
	}
	return b
}

// Decimal is an optional decimal. JSON null, "" and a missing field all
// leave it invalid.
type Decimal struct {
	decimal.Decimal
	Valid bool
}

func (d *Decimal) UnmarshalJSON(b []byte) error {
	s := unquote(b)
	if len(s) == 0 || bytes.Equal(s, null) {
		*d = Decimal{}
		return nil
	}
	v, err := decimal.NewFromString(string(s))
	if err != nil {
		return fmt.Errorf("decimal %s: %w", b, err)
	}
	*d = Decimal{Decimal: v, Valid: true}
	return nil
}

// Ptr returns nil when the value was absent.
func (d Decimal) Ptr() *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// Int is an int64 that may arrive quoted.
type Int int64

func (i *Int) UnmarshalJSON(b []byte) error {
	s := unquote(b)
	if len(s) == 0 || bytes.Equal(s, null) {
		*i = 0
		return nil
	}
	v, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		// some venues send integral ids as floats
		f, ferr := strconv.ParseFloat(string(s), 64)
		if ferr != nil {
			return fmt.Errorf("integer %s: %w", b, err)
		}
		v = int64(f)
	}
	*i = Int(v)
	return nil
}

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

// Millis is an epoch timestamp in milliseconds.
type Millis int64

func (m *Millis) UnmarshalJSON(b []byte) error {
	var i Int
	if err := i.UnmarshalJSON(b); err != nil {
		return err
	}
	*m = Millis(i)
	return nil
}

// Time converts to UTC. Zero stays the zero time.
func (m Millis) Time() time.Time {
	if m == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(m)).UTC()
}

func (m Millis) Ptr() *time.Time {
	if m == 0 {
		return nil
	}
	t := m.Time()
	return &t
}

// Malformed wraps err so callers can match translator.ErrMalformedFrame.
func Malformed(err error) error {
	return fmt.Errorf("%w: %v", translator.ErrMalformedFrame, err)
}

// Decode unmarshals a frame payload, wrapping failures as malformed.
func Decode(frame transport.Frame, v any) error {
	if err := json.Unmarshal(frame.Payload, v); err != nil {
		return Malformed(err)
	}
	return nil
}

// Side normalizes a venue side code.
func Side(code string) (models.Side, error) {
	s, err := models.ParseSide(code)
	if err != nil {
		return "", Malformed(err)
	}
	return s, nil
}

// JSON encodes v as a text message.
func JSON(v any) (transport.Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return transport.Message{}, err
	}
	return transport.Message{Kind: transport.Text, Payload: b}, nil
}

// Envelope builds the shared event header for frame.
func Envelope(ex models.Exchange, ch models.Channel, symbol string, frame transport.Frame, includeRaw bool, messageType string) models.Envelope {
	env := models.Envelope{
		Exchange:   ex,
		Channel:    ch,
		Symbol:     symbol,
		ReceivedAt: frame.ReceivedAt,
	}
	if includeRaw {
		env.Raw = Raw(frame, messageType)
	}
	return env
}

// Raw captures the frame as a raw payload.
func Raw(frame transport.Frame, messageType string) *models.RawPayload {
	if frame.Kind == transport.Binary {
		return models.NewBinaryRaw(frame.Payload, messageType)
	}
	return models.NewTextRaw(string(frame.Payload), messageType)
}

// Seq returns a pointer to a non-zero sequence number.
func Seq(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
