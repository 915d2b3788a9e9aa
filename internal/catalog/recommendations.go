package catalog

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// patchXML mirrors a <patch> element inside the <patches> section of
// patch_recommendations.xml.
type patchXML struct {
	UID      string `xml:"uid,attr"`
	Number   string `xml:"name"`
	Platform struct {
		ID string `xml:"id,attr"`
	} `xml:"platform"`
	Release struct {
		Name string `xml:"name,attr"`
	} `xml:"release"`
	Bug struct {
		Abstract string `xml:"abstract"`
	} `xml:"bug"`
	Files []patchFileXML `xml:"files>file"`
}

type patchFileXML struct {
	Name        string `xml:"name"`
	Size        string `xml:"size"`
	DownloadURL struct {
		Host string `xml:"host,attr"`
		Path string `xml:",chardata"`
	} `xml:"download_url"`
	Digests []struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"digest"`
}

// recReleaseXML mirrors a <release> element inside the two recommendation
// sections. Each lists recommended patch uids per platform.
type recReleaseXML struct {
	CID       string `xml:"cid,attr"`
	Platforms []struct {
		ID      string `xml:"id,attr"`
		Patches []struct {
			UID string `xml:"uid,attr"`
		} `xml:"patch"`
	} `xml:"platform"`
}

// RecommendedPatches streams patch_recommendations.xml and returns every
// artifact the catalog recommends for the known release components, in
// document order, across all platforms. It does not interpret filtering
// semantics; selection happens downstream.
//
// Records with a missing or unparsable size are malformed: they are logged
// and skipped, never fatal. EnsureBundle and ListPlatforms must have been
// called first.
func (c *Client) RecommendedPatches() ([]PatchRecord, error) {
	if c.byCode == nil {
		if _, err := c.ListPlatforms(); err != nil {
			return nil, err
		}
	}
	components, err := c.releaseComponents()
	if err != nil {
		return nil, err
	}

	path := filepath.Join(c.extractDir(), "patch_recommendations.xml")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open recommendations: %w", err)
	}
	defer f.Close()

	// uid -> artifact records, plus document order of first sight.
	byUID := make(map[string][]PatchRecord)
	var order []string

	// uids recommended for at least one release component.
	recommended := make(map[string]bool)

	dec := xml.NewDecoder(f)
	inPatches := false
	inRecommendations := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: parse recommendations: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "patches":
				inPatches = true
			case "standalone_recommendations", "components_recommendations":
				inRecommendations = true
			case "fixed_bugs":
				// Bulk of the document; irrelevant here.
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("catalog: parse recommendations: %w", err)
				}
			case "patch":
				if !inPatches {
					continue
				}
				var p patchXML
				if err := dec.DecodeElement(&p, &el); err != nil {
					return nil, fmt.Errorf("catalog: parse patch element: %w", err)
				}
				records := c.recordsFromPatch(p)
				if len(records) == 0 {
					continue
				}
				if _, seen := byUID[p.UID]; !seen {
					order = append(order, p.UID)
				}
				byUID[p.UID] = append(byUID[p.UID], records...)
			case "release":
				if !inRecommendations {
					continue
				}
				var r recReleaseXML
				if err := dec.DecodeElement(&r, &el); err != nil {
					return nil, fmt.Errorf("catalog: parse recommendation element: %w", err)
				}
				if _, ok := components[r.CID]; !ok {
					continue
				}
				for _, plat := range r.Platforms {
					for _, p := range plat.Patches {
						recommended[p.UID] = true
					}
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "patches":
				inPatches = false
			case "standalone_recommendations", "components_recommendations":
				inRecommendations = false
			}
		}
	}

	var out []PatchRecord
	for _, uid := range order {
		if recommended[uid] {
			out = append(out, byUID[uid]...)
		}
	}

	return out, nil
}

// recordsFromPatch converts one <patch> element into records, one per
// artifact file. Malformed files are logged and dropped.
func (c *Client) recordsFromPatch(p patchXML) []PatchRecord {
	platform, ok := c.platformByCode(p.Platform.ID)
	if !ok {
		log.Warn("skipping patch on unknown platform",
			"patch", p.Number, "platformCode", p.Platform.ID)
		return nil
	}

	records := make([]PatchRecord, 0, len(p.Files))
	for _, f := range p.Files {
		name := strings.TrimSpace(f.Name)
		rawSize := strings.TrimSpace(f.Size)
		url := f.DownloadURL.Host + strings.TrimSpace(f.DownloadURL.Path)

		if name == "" || f.DownloadURL.Path == "" {
			log.Warn("skipping malformed record: missing file name or url",
				"patch", p.Number, "platform", platform.Name)
			continue
		}
		size, err := strconv.ParseInt(rawSize, 10, 64)
		if err != nil || size <= 0 {
			log.Warn("skipping malformed record: missing size",
				"patch", p.Number, "file", name)
			continue
		}

		var sha string
		for _, d := range f.Digests {
			if d.Type == "SHA-256" {
				sha = strings.TrimSpace(d.Value)
			}
		}

		records = append(records, PatchRecord{
			PatchNumber: strings.TrimSpace(p.Number),
			Release:     strings.TrimSpace(p.Release.Name),
			Platform:    platform,
			Description: strings.TrimSpace(p.Bug.Abstract),
			FileName:    name,
			SizeBytes:   size,
			DownloadURL: url,
			SHA256:      strings.ToUpper(sha),
			Category:    CategoryQuarter,
		})
	}

	return records
}
