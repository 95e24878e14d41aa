package serialization

import (
	"errors"
	"testing"
)

type samplePayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
}

func TestJSON_RoundTrip(t *testing.T) {
	s := NewJSONSerializer()

	in := samplePayload{To: "a@b.c", Subject: "hi"}
	data, err := s.Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	if data[0] != byte(FormatJSON) {
		t.Errorf("expected JSON format prefix, got 0x%02X", data[0])
	}

	var out samplePayload
	if err := s.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out != in {
		t.Errorf("round trip differs: %+v vs %+v", out, in)
	}
}

func TestUnmarshal_LegacyJSONWithoutPrefix(t *testing.T) {
	s := NewJSONSerializer()

	var out samplePayload
	if err := s.Unmarshal([]byte(`{"to":"x@y.z","subject":"legacy"}`), &out); err != nil {
		t.Fatalf("expected legacy JSON accepted: %v", err)
	}
	if out.To != "x@y.z" {
		t.Errorf("unexpected decode: %+v", out)
	}
}

func TestMarshal_ProtobufRequiresMessage(t *testing.T) {
	s := NewProtobufSerializer()

	_, err := s.Marshal(samplePayload{To: "a@b.c"})
	if !errors.Is(err, ErrMarshalFailed) {
		t.Errorf("expected ErrMarshalFailed for non-proto value, got %v", err)
	}
}

func TestDetectFormat(t *testing.T) {
	s := NewJSONSerializer()

	format, payload, err := s.DetectFormat([]byte{byte(FormatProtobuf), 0x0A, 0x01})
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if format != FormatProtobuf {
		t.Errorf("expected protobuf, got %d", format)
	}
	if len(payload) != 2 {
		t.Errorf("expected prefix stripped, got %d bytes", len(payload))
	}

	format, _, err = s.DetectFormat([]byte(`[1,2]`))
	if err != nil || format != FormatJSON {
		t.Errorf("expected legacy JSON array detected, got %d %v", format, err)
	}

	if _, _, err := s.DetectFormat(nil); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestIsProtobuf(t *testing.T) {
	s := NewJSONSerializer()

	if s.IsProtobuf([]byte(`{"a":1}`)) {
		t.Error("JSON mistaken for protobuf")
	}
	if !s.IsProtobuf([]byte{byte(FormatProtobuf), 0x00}) {
		t.Error("protobuf prefix not detected")
	}
}
