package client

import (
	"context"

	"github.com/roach88/fieldkit/internal/ir"
)

// DriftState compares a queued submission's frozen fingerprint with the
// schema currently cached for its form.
type DriftState string

const (
	DriftUnchanged     DriftState = "unchanged"
	DriftChanged       DriftState = "changed"
	DriftSchemaMissing DriftState = "schema_missing"
)

// Drift is the drift verdict for one queued submission.
type Drift struct {
	ID          string     `json:"id"`
	FormName    string     `json:"form_name"`
	QueuedHash  string     `json:"queued_hash"`
	CurrentHash string     `json:"current_hash,omitempty"`
	State       DriftState `json:"state"`
}

// CheckDrift reports whether item was drafted against the schema currently
// cached for its form. A missing or corrupt cached schema is
// DriftSchemaMissing.
func (c *Client) CheckDrift(ctx context.Context, item ir.SubmissionItem) (Drift, error) {
	d := Drift{ID: item.ID, FormName: item.FormName, QueuedHash: item.SchemaHash}

	r, err := c.schemas.Lookup(ctx, item.FormName)
	if err != nil {
		return d, err
	}
	if !r.OK() {
		d.State = DriftSchemaMissing
		return d, nil
	}

	d.CurrentHash = r.Value.Fingerprint()
	if d.CurrentHash == item.SchemaHash {
		d.State = DriftUnchanged
	} else {
		d.State = DriftChanged
	}
	return d, nil
}

// DriftReport checks every queued submission, in queue order.
func (c *Client) DriftReport(ctx context.Context) ([]Drift, error) {
	items, err := c.queue.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Drift, 0, len(items))
	for _, it := range items {
		d, err := c.CheckDrift(ctx, it)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
