package database

// HNSW index parameters for 512-dim face templates
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// so that several templates of the same employee do not crowd out others.
	HNSWSearchMultiplier = 3
)
