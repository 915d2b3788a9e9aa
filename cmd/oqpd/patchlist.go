package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/catalog"
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/logging"
)

// genericPlatformCode is used when a patch list row leaves the platform
// column blank (platform-independent patches).
const genericPlatformCode = "2000"

// recordsFromPatchList resolves a CSV patch list into download records.
//
// Columns: patch number, CPU/version (ignored), description (ignored),
// group (download subdirectory), platform (code or name as printed by -l;
// blank means platform-independent). Lines starting with '#' are comments.
// Malformed rows are logged and skipped, never fatal.
func recordsFromPatchList(ctx context.Context, cat *catalog.Client, platforms []catalog.Platform, path string) ([]catalog.PatchRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open patch list: %w", err)
	}
	defer f.Close()

	log := logging.L("cli")

	byName := make(map[string]catalog.Platform, len(platforms))
	byCode := make(map[string]catalog.Platform, len(platforms))
	for _, p := range platforms {
		byName[p.Name] = p
		byCode[p.Code] = p
	}

	r := csv.NewReader(f)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var records []catalog.PatchRecord
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse patch list: %w", err)
		}
		if len(row) != 5 {
			log.Warn("skipping patch list line, expected 5 columns", "line", strings.Join(row, ","))
			continue
		}

		number := strings.TrimSpace(row[0])
		group := strings.TrimSpace(row[3])
		platField := strings.TrimSpace(row[4])

		plat, ok := resolvePlatform(platField, byName, byCode)
		if !ok {
			log.Warn("platform not found for patch, skipping line", "patch", number, "platform", platField)
			continue
		}

		recs, err := cat.PatchByNumber(ctx, number, []catalog.Platform{plat}, catalog.CategoryCustom, group)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("patch search failed, skipping", "patch", number, "platform", plat.Code, "error", err)
			continue
		}
		if len(recs) == 0 {
			log.Warn("no downloadable files for patch", "patch", number, "platform", plat.Code)
		}
		records = append(records, recs...)
	}

	return records, nil
}

// resolvePlatform maps the platform column onto a catalog platform. A
// numeric value is taken as a code, a blank means the generic platform,
// anything else must match a platform name exactly.
func resolvePlatform(field string, byName, byCode map[string]catalog.Platform) (catalog.Platform, bool) {
	switch {
	case field == "":
		if p, ok := byCode[genericPlatformCode]; ok {
			return p, true
		}
		return catalog.Platform{Code: genericPlatformCode, Name: "Generic Platform"}, true
	case isNumeric(field):
		if p, ok := byCode[field]; ok {
			return p, true
		}
		return catalog.Platform{Code: field, Name: field}, true
	default:
		p, ok := byName[field]
		return p, ok
	}
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
