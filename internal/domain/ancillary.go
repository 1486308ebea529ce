package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
)

// UnknownTitle is the placeholder used when no title can be decoded.
const UnknownTitle = "Unknown Question"

// Ancillary is the decoded form of a question's ancillary data:
//
//	q: title: <title>, description: <description>, res_data: <res_data>[,initializer:<hex>]
type Ancillary struct {
	Title          string
	Description    string
	ResolutionData string
	Initializer    common.Address
	Raw            string
}

// ResolutionOption is one "pN: value" pair of res_data.
type ResolutionOption struct {
	Label string
	Value string
}

const (
	keyTitle       = "title:"
	keyDescription = "description:"
	keyResData     = "res_data:"
	keyInitializer = "initializer:"
)

var resOptionRe = regexp.MustCompile(`(?i)\b(p\d+)\s*:\s*([0-9]+(?:\.[0-9]+)?)`)

// DecodeAncillary decodes raw ancillary bytes. It never fails outright: when
// the text does not follow the grammar the returned value carries a
// placeholder title, and the error is a *ParseError describing what was
// missing.
func DecodeAncillary(raw []byte) (Ancillary, error) {
	out := Ancillary{Title: UnknownTitle}
	if len(raw) == 0 {
		return out, &ParseError{Reason: "empty"}
	}
	if !utf8.Valid(raw) {
		out.Raw = "0x" + common.Bytes2Hex(raw)
		return out, &ParseError{Raw: out.Raw, Reason: "not valid UTF-8"}
	}

	text := string(raw)
	out.Raw = text

	body, initializer := splitInitializer(text)
	if initializer != "" {
		if common.IsHexAddress(initializer) {
			out.Initializer = common.HexToAddress(initializer)
		} else if common.IsHexAddress("0x" + initializer) {
			out.Initializer = common.HexToAddress("0x" + initializer)
		}
	}

	lower := asciiLower(body)
	ti := strings.Index(lower, keyTitle)
	di := indexAfter(lower, keyDescription, ti)
	ri := indexAfter(lower, keyResData, max(ti, di))

	if ti >= 0 {
		out.Title = field(body, ti+len(keyTitle), firstPositive(di, ri, len(body)))
		if out.Title == "" {
			out.Title = UnknownTitle
		}
	}
	if di >= 0 {
		out.Description = field(body, di+len(keyDescription), firstPositive(ri, len(body)))
	}
	if ri >= 0 {
		out.ResolutionData = field(body, ri+len(keyResData), len(body))
	}

	if ti < 0 || out.Title == UnknownTitle {
		return out, &ParseError{Raw: text, Reason: "missing title"}
	}
	return out, nil
}

// EncodeAncillary renders a into the grammar DecodeAncillary accepts. The
// initializer suffix is appended on-chain by the adapter and is not written.
func EncodeAncillary(a Ancillary) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "q: title: %s", strings.TrimSpace(a.Title))
	if a.Description != "" {
		fmt.Fprintf(&sb, ", description: %s", strings.TrimSpace(a.Description))
	}
	if a.ResolutionData != "" {
		fmt.Fprintf(&sb, ", res_data: %s", strings.TrimSpace(a.ResolutionData))
	}
	return []byte(sb.String())
}

// ResolutionOptions extracts the "pN: value" pairs from res_data, in order.
func (a Ancillary) ResolutionOptions() []ResolutionOption {
	matches := resOptionRe.FindAllStringSubmatch(a.ResolutionData, -1)
	if len(matches) == 0 {
		return nil
	}
	opts := make([]ResolutionOption, 0, len(matches))
	for _, m := range matches {
		opts = append(opts, ResolutionOption{Label: strings.ToLower(m[1]), Value: m[2]})
	}
	return opts
}

// splitInitializer removes the trailing ",initializer:<hex>" the adapter
// appends to every question.
func splitInitializer(text string) (body, initializer string) {
	i := strings.LastIndex(asciiLower(text), ","+keyInitializer)
	if i < 0 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i+1+len(keyInitializer):])
}

// indexAfter finds key in s starting after position from (which may be -1).
func indexAfter(s, key string, from int) int {
	start := max(from, 0)
	i := strings.Index(s[start:], key)
	if i < 0 {
		return -1
	}
	return start + i
}

// field returns s[start:end] trimmed of spaces and the separating comma.
func field(s string, start, end int) string {
	if start > end || start > len(s) {
		return ""
	}
	v := strings.TrimSpace(s[start:end])
	return strings.TrimSpace(strings.TrimSuffix(v, ","))
}

// asciiLower lowercases A-Z only, keeping byte offsets aligned with s.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v >= 0 {
			return v
		}
	}
	return -1
}
