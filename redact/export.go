package redact

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"golang.org/x/net/html"

	"github.com/hazyhaar/veil/store"
)

// RenderRedacted parses an HTML document, applies the domain's stored marks
// to it, and renders the result. This backs snapshot export: a copy of the
// page as the user sees it, redactions included.
func RenderRedacted(ctx context.Context, st *store.Store, domain string, src io.Reader) ([]byte, Result, error) {
	doc, err := html.Parse(src)
	if err != nil {
		return nil, Result{}, fmt.Errorf("redact: parse document: %w", err)
	}

	flags, err := st.GetFlags(ctx)
	if err != nil {
		return nil, Result{}, fmt.Errorf("redact: read flags: %w", err)
	}
	buckets, err := st.ListForDomain(ctx, domain)
	if err != nil {
		return nil, Result{}, fmt.Errorf("redact: list marks: %w", err)
	}

	res := ApplySnapshot(doc, flags, buckets)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, Result{}, fmt.Errorf("redact: render document: %w", err)
	}
	return buf.Bytes(), res, nil
}
