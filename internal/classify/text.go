package classify

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var wroteLine = regexp.MustCompile(`(?i)^on .+ wrote:$`)

// blockTags end a line of text when they open or close.
var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "blockquote": true,
}

// PlainText converts an email body, HTML or plain, to text with the quoted
// previous message removed.
func PlainText(body string) string {
	if strings.Contains(body, "<") && strings.Contains(body, ">") {
		body = htmlToText(body)
	}
	return stripQuoted(body)
}

func htmlToText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "script" || tag == "style":
				skip++
			case blockTags[tag]:
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "script" || tag == "style":
				if skip > 0 {
					skip--
				}
			case blockTags[tag]:
				sb.WriteByte('\n')
			}
		}
	}
}

// stripQuoted drops "> " quoted lines and everything after an
// "On ... wrote:" attribution line, then collapses blank runs.
func stripQuoted(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if wroteLine.MatchString(line) {
			break
		}
		if strings.HasPrefix(line, ">") {
			continue
		}
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
