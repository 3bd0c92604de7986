package cmd

import (
	"fmt"
	"time"

	"bulkmerge/core/merge"
	"bulkmerge/core/utils"
	"bulkmerge/feature/records"
	"bulkmerge/feature/tables"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type syncFlags struct {
	input      string
	output     string
	schema     string
	keys       string
	exclude    string
	batchSize  int
	timeout    time.Duration
	noIdentity bool
}

var operations = []struct {
	kind  merge.Kind
	short string
}{
	{merge.KindInsert, "Insert records, writing generated identities back"},
	{merge.KindUpdate, "Update rows matched on the primary key"},
	{merge.KindUpsert, "Insert or update rows matched on the primary key"},
	{merge.KindDelete, "Delete rows matched on the primary key"},
	{merge.KindCopy, "Append records without identity handling"},
}

func newSyncCmd(kind merge.Kind, short string) *cobra.Command {
	var f syncFlags

	c := &cobra.Command{
		Use:   string(kind) + " <table>",
		Short: short,
		Long: short + `.

Records are read as a JSON array of objects from a file, "-" for stdin, or
s3://bucket/key (a key ending in "/" reads every .json object below it).
Object keys are matched to table columns case-insensitively; keys without a
column are ignored.

Examples:
  bulkmerge ` + string(kind) + ` users --input users.json
  bulkmerge ` + string(kind) + ` users --input s3://imports/users/ --keys email --output users.out.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, kind, args[0], f)
		},
	}

	c.Flags().StringVarP(&f.input, "input", "i", records.Stdio, "Records location: file, - or s3://bucket/key")
	c.Flags().StringVarP(&f.output, "output", "o", "", "Write the records, identities included, to this location")
	c.Flags().StringVar(&f.schema, "schema", "", "Schema of the table (dialect default when empty)")
	c.Flags().StringVar(&f.keys, "keys", "", "Comma separated primary key override")
	c.Flags().StringVar(&f.exclude, "exclude", "", "Comma separated columns to leave out")
	c.Flags().IntVar(&f.batchSize, "batch-size", 0, "Rows per transfer chunk (config default when 0)")
	c.Flags().DurationVar(&f.timeout, "timeout", 0, "Per-command timeout (config default when 0)")
	c.Flags().BoolVar(&f.noIdentity, "no-identity", false, "Do not write generated identities back")
	return c
}

func runSync(cmd *cobra.Command, kind merge.Kind, table string, f syncFlags) error {
	ctx := cmd.Context()

	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.store(f.input, f.output)
	if err != nil {
		return err
	}

	rows, err := store.Read(ctx, f.input)
	if err != nil {
		return err
	}

	svc := tables.NewService(a.engine, a.db, a.log)
	result, err := svc.Apply(ctx, kind, table, tables.Request{
		Schema:       f.schema,
		Rows:         rows,
		PrimaryKeys:  utils.SplitList(f.keys),
		Exclude:      utils.SplitList(f.exclude),
		BatchSize:    f.batchSize,
		Timeout:      f.timeout,
		SkipIdentity: f.noIdentity,
	})
	if err != nil {
		return err
	}

	a.log.Info("Records applied",
		zap.String("operation", string(kind)),
		zap.String("table", table),
		zap.Int("rows", result.Count),
		zap.Strings("ignored", result.Ignored),
	)

	if f.output == "" {
		return nil
	}
	if err := store.Write(ctx, f.output, result.Rows); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	return nil
}

func init() {
	for _, op := range operations {
		RootCmd.AddCommand(newSyncCmd(op.kind, op.short))
	}
}
