package security

import (
	"encoding/pem"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Operator-supplied key material rarely survives the trip through env vars
// and deployment UIs intact. NormalizePEM undoes the known mangles:
//
//   - surrounding single or double quotes
//   - literal `\n` (and `\r\n`) escape sequences instead of newlines
//   - a fully flattened single-line PEM (markers intact, newlines stripped)
//
// Anything it cannot confidently reconstruct into a parseable PEM block is
// rejected; the caller treats that as a configuration error, never as a
// best-effort key.
var pemBlockRe = regexp.MustCompile(`-----BEGIN ([A-Z0-9 ]+)-----(.*?)-----END ([A-Z0-9 ]+)-----`)

func NormalizePEM(input string) (string, error) {
	s := strings.TrimSpace(input)
	s = strings.Trim(s, `"'`)
	s = strings.ReplaceAll(s, `\r\n`, "\n")
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("empty key material")
	}

	if block, _ := pem.Decode([]byte(s)); block != nil {
		return s + "\n", nil
	}

	// Markers present but line structure gone: rebuild it.
	m := pemBlockRe.FindStringSubmatch(strings.ReplaceAll(s, "\n", " "))
	if m == nil {
		return "", errors.New("no PEM block markers found")
	}
	label, body, endLabel := m[1], m[2], m[3]
	if label != endLabel {
		return "", fmt.Errorf("mismatched PEM markers: BEGIN %s / END %s", label, endLabel)
	}
	body = strings.Join(strings.Fields(body), "")
	if body == "" {
		return "", errors.New("empty PEM body")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "-----BEGIN %s-----\n", label)
	for len(body) > 64 {
		b.WriteString(body[:64])
		b.WriteByte('\n')
		body = body[64:]
	}
	b.WriteString(body)
	b.WriteByte('\n')
	fmt.Fprintf(&b, "-----END %s-----\n", label)

	rebuilt := b.String()
	if block, _ := pem.Decode([]byte(rebuilt)); block == nil {
		return "", errors.New("could not reconstruct a valid PEM block")
	}
	return rebuilt, nil
}
