package pairing

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

const (
	uriScheme     = "wc"
	uriVersion    = "2"
	relayProtocol = "irn"
)

// URI is what the wallet scans to join a pairing.
type URI struct {
	Topic         string
	SymKey        []byte
	RelayProtocol string
	RelayURL      string
}

// String renders wc:<topic>@2?relay-protocol=irn&symKey=<hex>&relay-url=<url>.
func (u URI) String() string {
	q := url.Values{}
	q.Set("relay-protocol", u.RelayProtocol)
	q.Set("symKey", hex.EncodeToString(u.SymKey))
	if u.RelayURL != "" {
		q.Set("relay-url", u.RelayURL)
	}
	return fmt.Sprintf("%s:%s@%s?%s", uriScheme, u.Topic, uriVersion, q.Encode())
}

// ParseURI parses a pairing URI and checks that the topic matches the key.
func ParseURI(s string) (URI, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), uriScheme+":")
	if !ok {
		return URI{}, fmt.Errorf("pairing uri must start with %s:", uriScheme)
	}
	path, rawQuery, _ := strings.Cut(rest, "?")
	topic, version, ok := strings.Cut(path, "@")
	if !ok || topic == "" {
		return URI{}, fmt.Errorf("pairing uri has no topic")
	}
	if version != uriVersion {
		return URI{}, fmt.Errorf("unsupported pairing version %q", version)
	}

	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return URI{}, fmt.Errorf("invalid pairing uri query: %w", err)
	}
	symKey, err := hex.DecodeString(q.Get("symKey"))
	if err != nil || len(symKey) != KeySize {
		return URI{}, fmt.Errorf("pairing uri has an invalid symKey")
	}
	if Topic(symKey) != topic {
		return URI{}, fmt.Errorf("pairing uri topic does not match its key")
	}

	u := URI{
		Topic:         topic,
		SymKey:        symKey,
		RelayProtocol: q.Get("relay-protocol"),
		RelayURL:      q.Get("relay-url"),
	}
	if u.RelayProtocol == "" {
		u.RelayProtocol = relayProtocol
	}
	return u, nil
}
