package models

import (
	"strings"
	"testing"
)

func TestMessageValidate(t *testing.T) {
	valid := Message{
		PhoneNumber: "+15551234567",
		Body:        "hello",
		Direction:   DirectionInbound,
		Sender:      SenderCustomer,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid message failed validation: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Message)
		want   error
	}{
		{"empty phone", func(m *Message) { m.PhoneNumber = "" }, ErrEmptyPhone},
		{"empty body", func(m *Message) { m.Body = "" }, ErrEmptyBody},
		{"body too long", func(m *Message) { m.Body = strings.Repeat("a", MaxMessageBodyLength+1) }, ErrBodyTooLong},
		{"bad direction", func(m *Message) { m.Direction = "sideways" }, ErrInvalidDirection},
		{"bad sender", func(m *Message) { m.Sender = "robot" }, ErrInvalidSender},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := valid
			tc.mutate(&m)
			if err := m.Validate(); err != tc.want {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestIsValidCustomerStatus(t *testing.T) {
	for _, s := range []CustomerStatus{StatusLead, StatusQualified, StatusHumanTakeover, StatusClosed} {
		if !IsValidCustomerStatus(s) {
			t.Errorf("%s should be valid", s)
		}
	}
	if IsValidCustomerStatus("prospect") {
		t.Error("unknown status should be invalid")
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	if r := Success(nil); r.Status != string(APIStatusOK) {
		t.Errorf("Success status = %q", r.Status)
	}
	if r := Error("boom"); r.Status != string(APIStatusError) || r.Message != "boom" {
		t.Errorf("Error response = %+v", r)
	}
	if r := RecordedWithMessage("stored for human review"); r.Status != string(APIStatusRecorded) {
		t.Errorf("Recorded status = %q", r.Status)
	}
}
