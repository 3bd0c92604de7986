package merge

// resolution is the outcome of schema resolution for one operation.
type resolution[T any] struct {
	table   string
	schema  string
	members []Member[T]
	keys    []string
}

// resolve applies the naming precedence rules to a descriptor.
// Table: option > descriptor > type name. Schema: option > descriptor > defaultSchema.
// It performs no I/O and is deterministic.
func resolve[T any](d *Descriptor[T], opts Options, defaultSchema string) resolution[T] {
	r := resolution[T]{
		table:  firstNonEmpty(opts.TableName, d.table, d.natural),
		schema: firstNonEmpty(opts.Schema, d.schema, defaultSchema),
	}

	for _, m := range d.members {
		// Ignored members are never persisted
		if m.ignore {
			continue
		}
		r.members = append(r.members, m)
		if m.key {
			r.keys = append(r.keys, m.Column())
		}
	}

	return r
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
