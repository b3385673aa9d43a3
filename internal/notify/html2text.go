// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package notify

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	blankLines = regexp.MustCompile(`\n{3,}`)
	spaceRuns  = regexp.MustCompile(`[ \t\r\n\f]+`)
)

// HTMLToText renders the plain-text alternative of an HTML mail body:
// bold becomes *x*, italic /x/, headings **x**; <br> and closing paragraphs
// break lines; links become "text [n]" with the targets listed at the end.
func HTMLToText(src string) string {
	var (
		sb    strings.Builder
		links []string
		hrefs []string
		skip  int
	)
	z := html.NewTokenizer(strings.NewReader(src))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or a read error; either way the input is done.
			break
		}
		tok := z.Token()
		switch tt {
		case html.TextToken:
			if skip > 0 {
				continue
			}
			sb.WriteString(spaceRuns.ReplaceAllString(tok.Data, " "))
		case html.StartTagToken, html.SelfClosingTagToken:
			switch tok.Data {
			case "script", "style", "head", "title":
				if tt == html.StartTagToken {
					skip++
				}
			case "b", "strong":
				sb.WriteString("*")
			case "i", "em":
				sb.WriteString("/")
			case "h1", "h2", "h3", "h4", "h5", "h6":
				sb.WriteString("\n**")
			case "br":
				sb.WriteString("\n")
			case "li":
				sb.WriteString("\n- ")
			case "a":
				hrefs = append(hrefs, attr(tok, "href"))
			}
		case html.EndTagToken:
			switch tok.Data {
			case "script", "style", "head", "title":
				if skip > 0 {
					skip--
				}
			case "b", "strong":
				sb.WriteString("*")
			case "i", "em":
				sb.WriteString("/")
			case "h1", "h2", "h3", "h4", "h5", "h6":
				sb.WriteString("**\n")
			case "p", "div", "ul", "ol", "table":
				sb.WriteString("\n\n")
			case "tr":
				sb.WriteString("\n")
			case "td", "th":
				sb.WriteString(" ")
			case "a":
				if len(hrefs) == 0 {
					continue
				}
				href := hrefs[len(hrefs)-1]
				hrefs = hrefs[:len(hrefs)-1]
				if href == "" {
					continue
				}
				links = append(links, href)
				fmt.Fprintf(&sb, " [%d]", len(links))
			}
		}
	}

	lines := strings.Split(sb.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	out := strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
	if len(links) == 0 {
		return out
	}
	var refs strings.Builder
	refs.WriteString(out)
	refs.WriteString("\n\n")
	for i, l := range links {
		fmt.Fprintf(&refs, "[%d] %s\n", i+1, l)
	}
	return refs.String()
}

func attr(tok html.Token, name string) string {
	for _, a := range tok.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
