package mode

// Mode is the execution mode of a search request.
type Mode string

// Execution modes.
const (
	// AdHoc is the bounded interactive pipeline: retrieve, fuse, rerank, distill.
	AdHoc Mode = "adhoc"
	// Systematic is the exhaustive streamed pipeline: retrieve, paginate.
	// Results are never fused, re-ranked, or distilled.
	Systematic Mode = "systematic"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == AdHoc || m == Systematic
}

func (m Mode) String() string { return string(m) }
