package snapshot

import (
	"bytes"
	"context"

	"github.com/roach88/mcg/internal/ir"
)

// Save exports st into sink under name.
func Save(ctx context.Context, sink Sink, name string, st ir.State) error {
	var buf bytes.Buffer
	if err := Export(&buf, st); err != nil {
		return err
	}
	return sink.Save(ctx, name, &buf, int64(buf.Len()))
}

// Load imports and verifies the named snapshot from sink.
func Load(ctx context.Context, sink Sink, name string) (ir.State, error) {
	rc, err := sink.Open(ctx, name)
	if err != nil {
		return ir.State{}, err
	}
	defer rc.Close()

	st, _, err := Import(rc)
	if err != nil {
		return ir.State{}, err
	}
	if err := Verify(st); err != nil {
		return ir.State{}, err
	}
	return st, nil
}
