package browserenv

import (
	"bytes"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// prescanLimit matches the HTML encoding sniffing window.
const prescanLimit = 1024

// DecodeHTML converts a saved page to UTF-8. The encoding comes from a
// byte order mark or a <meta> declaration when present, otherwise it is
// detected from the bytes. A leading BOM is consumed. Undecodable input is
// returned as is.
func DecodeHTML(data []byte) string {
	out, _, err := transform.Bytes(unicode.BOMOverride(pageEncoding(data).NewDecoder()), data)
	if err != nil {
		return string(data)
	}
	return string(out)
}

func pageEncoding(data []byte) encoding.Encoding {
	// certain is only set for a BOM.
	if e, _, certain := charset.DetermineEncoding(data, ""); certain {
		return e
	}
	if label := declaredCharset(data); label != "" {
		if e, _ := charset.Lookup(label); e != nil {
			return e
		}
	}
	if utf8.Valid(data) {
		return encoding.Nop
	}
	if result, err := chardet.NewHtmlDetector().DetectBest(data); err == nil && result != nil {
		if e, _ := charset.Lookup(result.Charset); e != nil {
			return e
		}
	}
	return encoding.Nop
}

// declaredCharset returns the charset named by <meta charset> or a
// <meta http-equiv="content-type"> in the first prescanLimit bytes.
func declaredCharset(data []byte) string {
	if len(data) > prescanLimit {
		data = data[:prescanLimit]
	}
	z := html.NewTokenizer(bytes.NewReader(data))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, more := z.TagName()
			if string(name) != "meta" {
				continue
			}
			var equiv, content string
			for more {
				var key, val []byte
				key, val, more = z.TagAttr()
				switch string(key) {
				case "charset":
					return strings.TrimSpace(string(val))
				case "http-equiv":
					equiv = strings.ToLower(string(val))
				case "content":
					content = string(val)
				}
			}
			if equiv == "content-type" {
				if _, params, err := mime.ParseMediaType(content); err == nil && params["charset"] != "" {
					return params["charset"]
				}
			}
		}
	}
}
