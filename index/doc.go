// Package index provides in-memory nearest-neighbor search over unit vectors.
//
// Scores are dot products, which equal cosine similarity for the normalized
// vectors the ai.Embedder produces. Every implementation returns hits in
// descending score order with ties broken by ascending ID, so results are
// reproducible across runs and across implementations.
//
// Two implementations are provided:
//
//   - Flat scans every vector. It is exact and serves as the correctness
//     baseline.
//   - IVF partitions vectors with spherical k-means and scans only the lists
//     whose centroids are closest to the query, re-ranking candidates
//     exactly. The number of probed lists is calibrated at build time so that
//     recall against Flat on a sample of corpus vectors meets a configured
//     bound.
//
// An index is immutable after Build and safe for concurrent searches.
package index
