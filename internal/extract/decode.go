package extract

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message/charset"
	"github.com/znz-systems/sortbox/internal/mailbox"
)

// decodePart decodes the base64url body of part and converts it to UTF-8
// using the charset declared in its Content-Type header.
func decodePart(part *mailbox.Part) (string, error) {
	if part.Data == "" {
		return "", nil
	}
	raw, err := decodeBase64URL(part.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %s part: %v", ErrMalformedPayload, mediaType(part.MimeType), err)
	}
	return toUTF8(raw, partCharset(part)), nil
}

func decodeBase64URL(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if out, err := base64.URLEncoding.DecodeString(data); err == nil {
		return out, nil
	}
	if out, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return out, nil
	}
	return base64.StdEncoding.DecodeString(data)
}

func partCharset(part *mailbox.Part) string {
	ct := part.Header("Content-Type")
	if ct == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}

// toUTF8 converts raw from label. Unknown charsets leave the bytes untouched.
func toUTF8(raw []byte, label string) string {
	switch label {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return string(raw)
	}
	r, err := charset.Reader(label, bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return string(raw)
	}
	return string(out)
}
