package model

import "testing"

func TestGenMessageID(t *testing.T) {
	msgid := GenMessageID("test.tld")
	t.Logf("generated id %s", msgid)
	if !msgid.Valid() {
		t.Fatalf("invalid generated message-id %s", msgid)
	}
	msgid = GenMessageID("<><><>")
	t.Logf("generated id %s", msgid)
	if msgid.Valid() {
		t.Fatalf("generated valid message-id when it should've been invalid %s", msgid)
	}
}

func TestMessageIDValid(t *testing.T) {
	cases := map[string]bool{
		"<abc123@news.example.com>": true,
		"<a@b>":                     true,
		"no-brackets":               false,
		"<missing-host>":            false,
		"<has space@host>":          false,
	}
	for id, want := range cases {
		if got := MessageID(id).Valid(); got != want {
			t.Errorf("MessageID(%q).Valid() = %v, want %v", id, got, want)
		}
	}
}
