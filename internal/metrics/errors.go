package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"unicode"
)

var typeAliases = map[string]string{
	"runner.HTTPError": "HTTP error response",
	"url.Error":        "Request URL error",
}

// ErrorLabel classifies a request failure for the error breakdown. Transport
// failures get a fixed label; anything else is named after its type.
func ErrorLabel(err error) string {
	if err == nil {
		return ""
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timeout"
	case errors.Is(err, context.Canceled):
		return "Request canceled"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "Connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "Connection reset"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "Request timeout"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "DNS lookup failed"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	return typeLabel(fmt.Sprintf("%T", err))
}

// typeLabel names an error by its dynamic type: "*pkg.someError" becomes
// "Some Error (pkg)". Types declared in package main get no suffix.
func typeLabel(typeName string) string {
	name := strings.TrimPrefix(strings.TrimSpace(typeName), "*")
	if name == "" {
		return "Unknown error"
	}
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	if alias, ok := typeAliases[name]; ok {
		return alias
	}

	pkg, typ, found := strings.Cut(name, ".")
	if !found {
		pkg, typ = "", name
	}
	words := splitWords(typ)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	label := strings.Join(words, " ")
	if pkg == "" || pkg == "main" {
		return label
	}
	return fmt.Sprintf("%s (%s)", label, pkg)
}

// splitWords breaks a Go identifier at case and digit boundaries, keeping
// acronyms such as HTTP together.
func splitWords(ident string) []string {
	runes := []rune(ident)
	if len(runes) == 0 {
		return nil
	}
	var words []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		lowerToUpper := !unicode.IsUpper(prev) && unicode.IsUpper(cur)
		acronymEnd := unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
		digitStart := unicode.IsDigit(cur) && !unicode.IsDigit(prev)
		if lowerToUpper || acronymEnd || digitStart {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	return append(words, string(runes[start:]))
}
