// Package metadata talks to the remote metadata service that owns form
// schemas.
//
// The service follows the Frappe REST layout:
//
//	GET {base}/api/resource/DocType/{name}                          -> {"data": <doctype>}
//	GET {base}/api/resource/DocType?fields=["name"]&limit_page_length=0 -> {"data": [{"name": ...}]}
//
// Every failure (transport, non-2xx status, undecodable or invalid payload)
// is reported as an ir.Error with code REMOTE_FETCH_ERROR.
package metadata

import (
	"context"

	"github.com/roach88/fieldkit/internal/ir"
)

// Provider is the remote source of doctype schemas.
type Provider interface {
	// GetDocType fetches one schema by name.
	GetDocType(ctx context.Context, name string) (*ir.DocTypeSchema, error)

	// ListDocTypes returns the names of every doctype the provider serves.
	ListDocTypes(ctx context.Context) ([]string, error)
}
