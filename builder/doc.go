// Package builder turns parsed corpus rows into a new store version.
//
// A build validates the rows against the category tree, assigns stable
// record IDs from the corpus lineage, embeds the accepted rows through a
// worker pool, writes the result into a staging directory and finally swaps
// it in as the live version. A failed or canceled build never touches the
// live version.
//
// Basic usage:
//
//	b, err := builder.New(store.NewLayout(root), embedder, builder.WithLive(live))
//	rows, err := builder.ReadCSV(file)
//	report, err := b.Build(ctx, rows, builder.DeriveCategories(rows))
package builder
