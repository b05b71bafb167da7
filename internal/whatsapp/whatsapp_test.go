package whatsapp

import (
	"context"
	"testing"
)

func TestToJID(t *testing.T) {
	cases := []struct {
		in   string
		user string
	}{
		{"15551234567", "15551234567"},
		{"15551234567@" + JIDSuffix, "15551234567"},
	}
	for _, tc := range cases {
		jid := toJID(tc.in)
		if jid.User != tc.user {
			t.Errorf("toJID(%q).User = %q, want %q", tc.in, jid.User, tc.user)
		}
		if jid.Server != JIDSuffix {
			t.Errorf("toJID(%q).Server = %q, want %q", tc.in, jid.Server, JIDSuffix)
		}
	}
}

func TestCheckSendableRejectsUninitializedClient(t *testing.T) {
	c := &Client{}
	if err := c.checkSendable("15551234567"); err == nil {
		t.Error("checkSendable with nil waClient succeeded")
	}
	if err := c.SendText(context.Background(), "15551234567", "hi"); err == nil {
		t.Error("SendText with nil waClient succeeded")
	}
}

func TestIsReadyWithoutClient(t *testing.T) {
	c := &Client{}
	if c.IsReady() {
		t.Error("IsReady true for uninitialized client")
	}
}
