package indexer

import (
	"bufio"
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/snapetech/nunetv/internal/catalog"
)

// xmltvTimeLayout is the XMLTV timestamp form "yyyyMMddHHmmss ±HHmm".
const xmltvTimeLayout = "20060102150405 -0700"

// ParseXMLTVString is ParseXMLTV over an in-memory document.
func ParseXMLTVString(doc string) ([]catalog.EpgProgram, error) {
	return ParseXMLTV(strings.NewReader(doc))
}

// ParseXMLTV streams programme elements out of an XMLTV document. Blank input
// yields no programmes. Malformed XML returns a KindParse error. Programmes
// with a blank channel or an unparsable start/stop are dropped.
func ParseXMLTV(r io.Reader) ([]catalog.EpgProgram, error) {
	br := bufio.NewReader(r)
	if blank, err := onlyWhitespace(br); err != nil {
		return nil, &Error{Kind: KindParse, Op: "xmltv", Err: err}
	} else if blank {
		return nil, nil
	}

	dec := xml.NewDecoder(br)
	dec.CharsetReader = charset.NewReaderLabel

	var (
		out     []catalog.EpgProgram
		cur     *catalog.EpgProgram
		title   strings.Builder
		desc    strings.Builder
		inTitle bool
		inDesc  bool
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &Error{Kind: KindParse, Op: "xmltv", Msg: "malformed document", Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case strings.EqualFold(t.Name.Local, "programme"):
				cur = &catalog.EpgProgram{
					ChannelID: strings.TrimSpace(xmlAttr(t.Attr, "channel")),
					Start:     parseXMLTVTime(xmlAttr(t.Attr, "start")),
					Stop:      parseXMLTVTime(xmlAttr(t.Attr, "stop")),
				}
				title.Reset()
				desc.Reset()
			case strings.EqualFold(t.Name.Local, "title"):
				inTitle = true
			case strings.EqualFold(t.Name.Local, "desc"):
				inDesc = true
			}
		case xml.EndElement:
			switch {
			case strings.EqualFold(t.Name.Local, "programme"):
				if cur != nil {
					cur.Title = title.String()
					cur.Description = desc.String()
					if cur.Valid() {
						out = append(out, *cur)
					}
				}
				cur = nil
				inTitle, inDesc = false, false
			case strings.EqualFold(t.Name.Local, "title"):
				inTitle = false
			case strings.EqualFold(t.Name.Local, "desc"):
				inDesc = false
			}
		case xml.CharData:
			if cur == nil {
				continue
			}
			if inTitle {
				title.Write(t)
			} else if inDesc {
				desc.Write(t)
			}
		}
	}
	return out, nil
}

// parseXMLTVTime returns the zero time for anything that does not match the
// XMLTV layout; callers drop such programmes.
func parseXMLTVTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(xmltvTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func xmlAttr(attrs []xml.Attr, key string) string {
	for _, a := range attrs {
		if strings.EqualFold(a.Name.Local, key) {
			return a.Value
		}
	}
	return ""
}

// onlyWhitespace reports whether the remaining input holds nothing but
// whitespace. Non-blank input is left unread.
func onlyWhitespace(br *bufio.Reader) (bool, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return true, nil
			}
			return false, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return false, br.UnreadByte()
	}
}
