// Package progress provides terminal progress reporting for batch patch
// downloads. The reporter is safe for concurrent use by multiple workers.
package progress
