package wire

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cryptoconnect/internal/translator"
	"cryptoconnect/internal/transport"
	"cryptoconnect/models"
)

func TestDecimalAcceptsStringAndNumber(t *testing.T) {
	var quoted, bare struct {
		O Decimal `json:"o"`
	}
	if err := json.Unmarshal([]byte(`{"o":"100.5"}`), &quoted); err != nil {
		t.Fatalf("quoted: %v", err)
	}
	if err := json.Unmarshal([]byte(`{"o":100.5}`), &bare); err != nil {
		t.Fatalf("bare: %v", err)
	}

	want := decimal.RequireFromString("100.5")
	if !quoted.O.Valid || !want.Equal(quoted.O.Decimal) {
		t.Errorf("quoted = %+v, want %s", quoted.O, want)
	}
	if !quoted.O.Decimal.Equal(bare.O.Decimal) {
		t.Errorf("bare %s differs from quoted %s", bare.O.Decimal, quoted.O.Decimal)
	}
}

func TestDecimalAbsentForms(t *testing.T) {
	var v struct {
		A Decimal `json:"a"`
		B Decimal `json:"b"`
		C Decimal `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":null,"b":""}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A.Ptr() != nil || v.B.Ptr() != nil || v.C.Ptr() != nil {
		t.Errorf("absent decimals should be nil: %+v", v)
	}
	if err := json.Unmarshal([]byte(`{"a":"abc"}`), &v); err == nil {
		t.Errorf("expected error for non-numeric decimal")
	}
}

func TestMillisAndInt(t *testing.T) {
	var v struct {
		T1 Millis `json:"t1"`
		T2 Millis `json:"t2"`
		ID Int    `json:"id"`
	}
	if err := json.Unmarshal([]byte(`{"t1":1700000000000,"t2":"1700000000000","id":"42"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	if !v.T1.Time().Equal(want) {
		t.Errorf("t1 = %s, want %s", v.T1.Time(), want)
	}
	if v.T1 != v.T2 {
		t.Errorf("quoted millis differ: %d vs %d", v.T1, v.T2)
	}
	if v.ID.String() != "42" {
		t.Errorf("id = %s", v.ID.String())
	}
	if !Millis(0).Time().IsZero() || Millis(0).Ptr() != nil {
		t.Errorf("zero millis should be absent")
	}
}

func TestDecodeWrapsMalformed(t *testing.T) {
	var v map[string]any
	err := Decode(transport.Frame{Payload: []byte(`{not json`)}, &v)
	if !errors.Is(err, translator.ErrMalformedFrame) {
		t.Fatalf("err = %v, want ErrMalformedFrame", err)
	}
}

func TestEnvelopeRaw(t *testing.T) {
	frame := transport.Frame{Kind: transport.Text, Payload: []byte(`{"x":1}`), ReceivedAt: time.Unix(1, 0)}
	if env := Envelope(models.ExchangeBybit, models.ChannelTrades, "BTCUSDT", frame, false, "trades"); env.Raw != nil {
		t.Fatalf("raw attached without IncludeRaw: %+v", env.Raw)
	}

	env := Envelope(models.ExchangeBybit, models.ChannelTrades, "BTCUSDT", frame, true, "trades")
	if env.Raw == nil {
		t.Fatalf("raw missing")
	}
	if env.Raw.Encoding != models.RawText || env.Raw.Data != `{"x":1}` {
		t.Errorf("unexpected raw: %+v", env.Raw)
	}
	if !env.ReceivedAt.Equal(frame.ReceivedAt) {
		t.Errorf("receivedAt = %s, want %s", env.ReceivedAt, frame.ReceivedAt)
	}
}

func TestSide(t *testing.T) {
	s, err := Side("B")
	if err != nil || s != models.SideBuy {
		t.Fatalf("Side(B) = %s, %v", s, err)
	}
	if _, err := Side("?"); !errors.Is(err, translator.ErrMalformedFrame) {
		t.Fatalf("Side(?) err = %v", err)
	}
}
