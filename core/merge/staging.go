package merge

import (
	"context"
	"fmt"
)

// createStagingTable creates the empty staging table of the operation.
// When the identity column is transferred it is made nullable, so records
// without an identity can be staged. The table is never dropped explicitly;
// it disappears with the session.
func createStagingTable[T any](ctx context.Context, d Dialect, mc *Context[T]) error {
	ddl := d.CreateStagingTable(mc.staging, mc.Target(), mc.columns)
	if err := execTimeout(ctx, mc.db, mc.timeout, ddl); err != nil {
		return fmt.Errorf("failed to create staging table %s: %w", mc.staging, err)
	}

	if _, identity, ok := mc.IdentityMember(); ok {
		if relax := d.RelaxIdentity(mc.staging, identity); relax != "" {
			if err := execTimeout(ctx, mc.db, mc.timeout, relax); err != nil {
				return fmt.Errorf("failed to relax identity column %s: %w", identity.Name, err)
			}
		}
	}

	return nil
}
