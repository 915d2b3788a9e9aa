package catalog

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

const (
	searchPath = "/Orion/SimpleSearch/process_form"
	digestPath = "/Orion/ViewDigest/get_form"
)

var sha256Pattern = regexp.MustCompile(`\b[A-Fa-f0-9]{64}\b`)

// PatchByNumber searches the catalog for a patch number on each of the
// given platforms and returns one record per downloadable artifact found.
// category and group determine where the artifacts land in the download
// tree.
//
// The search endpoint answers with an HTML page; artifacts are the .zip
// anchors on it. Sizes come from a HEAD request per artifact; artifacts
// without a reported size are logged and skipped.
func (c *Client) PatchByNumber(ctx context.Context, number string, platforms []Platform, category Category, group string) ([]PatchRecord, error) {
	var out []PatchRecord

	for _, platform := range platforms {
		params := url.Values{
			"search_type":  {"patch"},
			"patch_number": {number},
			"plat_lang":    {platform.Code + "P"},
		}

		resp, err := c.http.Get(ctx, c.baseURL+searchPath, params)
		if err != nil {
			return nil, fmt.Errorf("%w: search patch %s: %v", ErrUnavailable, number, err)
		}
		links, err := zipLinks(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: parse search results for patch %s: %v", ErrUnavailable, number, err)
		}
		if len(links) == 0 {
			log.Warn("no artifacts found", "patch", number, "platform", platform.Name)
			continue
		}

		for _, link := range links {
			rec, ok := c.recordFromLink(ctx, link, number, platform, category, group)
			if !ok {
				continue
			}
			out = append(out, rec)
		}
	}

	return out, nil
}

type searchLink struct {
	href  string
	title string
}

func (c *Client) recordFromLink(ctx context.Context, link searchLink, number string, platform Platform, category Category, group string) (PatchRecord, bool) {
	href := link.href
	if strings.HasPrefix(href, "/") {
		href = c.baseURL + href
	}

	name := fileNameFromURL(href)
	if name == "" {
		log.Warn("skipping artifact with unparsable url", "patch", number, "url", link.href)
		return PatchRecord{}, false
	}

	size, err := c.http.Head(ctx, href)
	if err != nil || size <= 0 {
		log.Warn("skipping malformed record: no reported size",
			"patch", number, "file", name, "error", err)
		return PatchRecord{}, false
	}

	description := link.title
	if description == "" {
		description = "Patch " + number
	}

	sha, err := c.sha256ForURL(ctx, href)
	if err != nil {
		// Digest lookup is best effort; the size check still guards the
		// transfer.
		log.Debug("digest lookup failed", "patch", number, "file", name, "error", err)
	}

	return PatchRecord{
		PatchNumber: number,
		Platform:    platform,
		Description: description,
		FileName:    name,
		SizeBytes:   size,
		DownloadURL: href,
		SHA256:      sha,
		Category:    category,
		Group:       group,
	}, true
}

// sha256ForURL asks the digest endpoint for the artifact's checksum, keyed
// by the aru parameter of its download link. Returns "" when the link has
// no aru parameter.
func (c *Client) sha256ForURL(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	aru := u.Query().Get("aru")
	if aru == "" {
		return "", nil
	}

	resp, err := c.http.Get(ctx, c.baseURL+digestPath, url.Values{"aru": {aru}})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	page, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	match := sha256Pattern.Find(page)
	return strings.ToUpper(string(match)), nil
}

// zipLinks extracts the .zip anchors from a search results page.
func zipLinks(r io.Reader) ([]searchLink, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var links []searchLink
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var href, title string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "href":
					href = attr.Val
				case "title":
					title = attr.Val
				}
			}
			if href != "" && strings.Contains(href, ".zip") {
				links = append(links, searchLink{href: href, title: title})
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return links, nil
}

// fileNameFromURL extracts the artifact file name from a download link,
// dropping the query string.
func fileNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || !strings.HasSuffix(name, ".zip") {
		return ""
	}
	return name
}
