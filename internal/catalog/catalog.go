package catalog

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	oqpdhttp "github.com/lucaslellis/oracle-quarter-patch-downloader/internal/http"
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/logging"
)

var log = logging.L("catalog")

// ErrUnavailable is returned when the catalog service cannot be reached or
// keeps returning malformed data after the configured retries.
var ErrUnavailable = errors.New("catalog: service unavailable")

// Platform is an operating-system/architecture target recognized by the
// catalog. Unique by code.
type Platform struct {
	Code string
	Name string
}

// Category determines where an artifact lands in the download tree.
type Category string

const (
	// CategoryQuarter is a quarterly recommended patch, laid out under
	// quarter_patches/<release>/<platform name>/.
	CategoryQuarter Category = "quarter"

	// CategoryOPatch is the patching tool itself, laid out under opatch/.
	CategoryOPatch Category = "opatch"

	// CategoryAHF is the Autonomous Health Framework, laid out under ahf/.
	CategoryAHF Category = "ahf"

	// CategoryCustom is a patch-list download, laid out under the group
	// directory named by the list row.
	CategoryCustom Category = "custom"
)

// PatchRecord is one downloadable artifact reported by the catalog.
// Immutable once created.
type PatchRecord struct {
	PatchNumber string
	Release     string
	Platform    Platform
	Description string
	FileName    string
	SizeBytes   int64
	DownloadURL string
	SHA256      string
	Category    Category
	Group       string
}

// Key is the dedup identity of a record. Records from different query
// results that share a key collapse to one.
func (r PatchRecord) Key() string {
	return r.PatchNumber + "|" + r.Platform.Code + "|" + r.Release + "|" + r.FileName
}

// Component is a product release line the catalog recommends patches for.
type Component struct {
	CID     string
	Name    string
	Version string
}

// releaseComponentNames are the component names whose recommendations the
// client collects. Everything else in the catalog is unrelated middleware.
var releaseComponentNames = map[string]bool{
	"Oracle Database":    true,
	"RAC One Node":       true,
	"Oracle Clusterware": true,
}

// Client queries the catalog service and parses its responses into
// PatchRecord values. Queries are sequential; the client is not intended
// for concurrent use.
type Client struct {
	http     *oqpdhttp.Client
	baseURL  string
	cacheDir string

	platforms []Platform
	byCode    map[string]Platform
}

// New creates a catalog client. cacheDir is where the catalog bundle is
// stored and extracted.
func New(httpClient *oqpdhttp.Client, baseURL, cacheDir string) *Client {
	return &Client{
		http:     httpClient,
		baseURL:  baseURL,
		cacheDir: cacheDir,
	}
}

// ListPlatforms returns the catalog's platform list ordered by name.
// EnsureBundle must have been called first.
func (c *Client) ListPlatforms() ([]Platform, error) {
	if c.platforms != nil {
		return c.platforms, nil
	}

	path := filepath.Join(c.extractDir(), "aru_platforms.xml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read platform list: %w", err)
	}

	var doc struct {
		Platforms []struct {
			ID   string `xml:"id,attr"`
			Name string `xml:",chardata"`
		} `xml:"platform"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse platform list: %w", err)
	}

	c.byCode = make(map[string]Platform, len(doc.Platforms))
	c.platforms = make([]Platform, 0, len(doc.Platforms))
	for _, p := range doc.Platforms {
		plat := Platform{Code: p.ID, Name: strings.TrimSpace(p.Name)}
		if plat.Code == "" || plat.Name == "" {
			continue
		}
		c.platforms = append(c.platforms, plat)
		c.byCode[plat.Code] = plat
	}
	sort.Slice(c.platforms, func(i, j int) bool {
		return c.platforms[i].Name < c.platforms[j].Name
	})

	return c.platforms, nil
}

// releaseComponents parses components.xml and returns the release
// components whose recommendations should be collected, keyed by cid.
func (c *Client) releaseComponents() (map[string]Component, error) {
	path := filepath.Join(c.extractDir(), "components.xml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read components: %w", err)
	}

	var doc struct {
		CTypes []struct {
			Name       string `xml:"name,attr"`
			Components []struct {
				CID     string `xml:"cid,attr"`
				Name    string `xml:"name"`
				Version string `xml:"version"`
			} `xml:"component"`
		} `xml:"components>ctype"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse components: %w", err)
	}

	components := make(map[string]Component)
	for _, ct := range doc.CTypes {
		if ct.Name != "RELEASE" {
			continue
		}
		for _, comp := range ct.Components {
			name := strings.TrimSpace(comp.Name)
			if !releaseComponentNames[name] {
				continue
			}
			components[comp.CID] = Component{
				CID:     comp.CID,
				Name:    name,
				Version: strings.TrimSpace(comp.Version),
			}
		}
	}

	return components, nil
}

func (c *Client) platformByCode(code string) (Platform, bool) {
	p, ok := c.byCode[code]
	return p, ok
}
