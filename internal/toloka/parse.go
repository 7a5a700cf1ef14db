// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package toloka

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

var (
	topicHrefRe = regexp.MustCompile(`^t\d+$`)
	sizeRe      = regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s?(?:B|KB|MB|GB|TB|КБ|МБ|ГБ|ТБ)\b`)
	dateRe      = regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?: \d{2}:\d{2})?`)
)

// decodeHTML transcodes a tracker page (windows-1251, normally) to UTF-8 and
// parses it.
func decodeHTML(body []byte, contentType string) (*html.Node, error) {
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	doc, err := html.Parse(transform.NewReader(bytes.NewReader(body), enc.NewDecoder()))
	if err != nil {
		return nil, errors.Wrapf(err, "parse html as %s", name)
	}
	return doc, nil
}

// parseSearchPage extracts releases from tracker.php result rows.
func parseSearchPage(doc *html.Node) []Release {
	var releases []Release
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" && strings.HasPrefix(attr(n, "class"), "prow") {
			if rel, ok := parseSearchRow(n); ok {
				releases = append(releases, rel)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return releases
}

func parseSearchRow(row *html.Node) (Release, bool) {
	var rel Release
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				href := attr(n, "href")
				switch {
				case topicHrefRe.MatchString(href) && rel.GUID == "":
					rel.GUID = href
					rel.Title = nodeText(n)
				case strings.HasPrefix(href, "download.php") && rel.DownloadURL == "":
					rel.DownloadURL = href
				}
			case "td":
				class := attr(n, "class")
				text := nodeText(n)
				if strings.Contains(class, "seedmed") {
					if v, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
						rel.Seeders = v
					}
				} else if rel.Size == "" && !strings.Contains(class, "leechmed") && sizeRe.MatchString(text) {
					rel.Size = strings.TrimSpace(sizeRe.FindString(text))
				}
				if rel.PublishDate == "" {
					if m := dateRe.FindString(text); m != "" {
						rel.PublishDate = m
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(row)
	return rel, rel.GUID != ""
}

// parseTopicPage extracts a release from a single topic page. False means the
// page carries no release, which is how the tracker renders missing topics.
func parseTopicPage(doc *html.Node) (Release, bool) {
	var rel Release
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				if strings.Contains(attr(n, "class"), "maintitle") && rel.Title == "" {
					rel.Title = nodeText(n)
				}
				if strings.HasPrefix(attr(n, "href"), "download.php") && rel.DownloadURL == "" {
					rel.DownloadURL = attr(n, "href")
				}
			case "tr":
				parseLabeledRow(n, &rel)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return rel, rel.Title != "" && rel.DownloadURL != ""
}

// parseLabeledRow reads the "label: value" rows of the torrent details table.
func parseLabeledRow(row *html.Node, rel *Release) {
	cells := childCells(row)
	for i := 0; i+1 < len(cells); i++ {
		label := nodeText(cells[i])
		value := nodeText(cells[i+1])
		switch {
		case strings.HasPrefix(label, "Зареєстрований"):
			if rel.PublishDate == "" {
				rel.PublishDate = value
			}
		case strings.HasPrefix(label, "Автор"):
			if rel.Author == "" {
				rel.Author = value
			}
		case strings.HasPrefix(label, "Розмір"):
			if rel.Size == "" {
				rel.Size = value
			}
		case strings.HasPrefix(label, "Сід"):
			if v, err := strconv.Atoi(value); err == nil {
				rel.Seeders = v
			}
		}
	}
}

func childCells(row *html.Node) []*html.Node {
	var cells []*html.Node
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			cells = append(cells, c)
		}
	}
	return cells
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// nodeText collects the text content of a subtree with whitespace collapsed.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
