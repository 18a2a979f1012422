package model

import (
	"crypto/rand"
	"encoding/base32"
	"regexp"
	"strings"
	"time"
)

// MessageID is the globally unique, angle-bracket-delimited identifier
// of an article, e.g. "<abc123@news.example.com>".
type MessageID string

var exp_valid_msgid = regexp.MustCompilePOSIX(`^<[^<> ]+@[^<> ]+>$`)

// Valid reports whether this message-id is well formed per RFC 5536.
func (m MessageID) Valid() bool {
	return exp_valid_msgid.Copy().MatchString(m.String())
}

func (m MessageID) String() string {
	return string(m)
}

// GenMessageID generates a fresh message-id local to the given
// server name. It returns "<invalid>" when the trimmed name is empty
// or contains '<', '>', '@' or a space.
func GenMessageID(servername string) MessageID {
	servername = strings.TrimSpace(servername)
	if servername == "" || strings.ContainsAny(servername, "<>@ ") {
		return MessageID("<invalid>")
	}
	var buf [10]byte
	rand.Read(buf[:])
	local := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf[:]))
	return MessageID("<" + time.Now().UTC().Format("20060102150405.999999999") + "." + local + "@" + servername + ">")
}
