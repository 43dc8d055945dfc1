package strategy

// Strategy names one retriever variant.
type Strategy string

// Retriever variants.
const (
	// Dense retrieves by embedding similarity.
	Dense Strategy = "dense"
	// Sparse retrieves by boolean/full-text match. The only boolean-capable variant.
	Sparse Strategy = "sparse"
	// Graph retrieves 1-hop neighbors of matching nodes.
	Graph Strategy = "graph"
)

// IsValid checks if the strategy is one of the supported variants.
func (s Strategy) IsValid() bool {
	return s == Dense || s == Sparse || s == Graph
}

// BooleanCapable reports whether the variant can serve exhaustive boolean
// queries, which systematic mode requires.
func (s Strategy) BooleanCapable() bool {
	return s == Sparse
}

func (s Strategy) String() string { return string(s) }
