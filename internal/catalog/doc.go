// Package catalog queries the vendor patch catalog and normalizes its
// responses into PatchRecord values.
//
// The catalog is consumed two ways:
//
//   - The quarterly bundle (em_catalog.zip), cached and extracted locally,
//     holds the platform list, the component catalog and the patch
//     recommendations. RecommendedPatches streams the recommendations file
//     instead of loading it, since it runs to hundreds of megabytes.
//   - Patch-number searches hit the search endpoint directly and scrape the
//     artifact links off the result page.
//
// The client does not interpret filtering semantics: it returns everything
// the catalog reports for the requested scope. Individual records that fail
// to parse (most commonly a missing size) are logged and skipped, never
// fatal.
package catalog
