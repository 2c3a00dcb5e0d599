package graph

// GraphClient is the main client for building incident knowledge graphs.
// It manages incident upsert parallelism, embedding precompute parallelism
// and per-incident retry behavior.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	parallelIncidents  int
	parallelEmbeddings int
	maxRetries         int
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// ParallelIncidents controls how many incident transactions run in parallel.
// ParallelEmbeddings controls how many records are embedded concurrently.
// MaxRetries bounds the retries of a failed incident upsert.
type NewGraphClientParams struct {
	ParallelIncidents  int
	ParallelEmbeddings int
	MaxRetries         int
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		ParallelIncidents:  4,
//		ParallelEmbeddings: 8,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	parallelIncidents := params.ParallelIncidents
	if parallelIncidents <= 0 {
		parallelIncidents = 4
	}
	parallelEmbeddings := params.ParallelEmbeddings
	if parallelEmbeddings <= 0 {
		parallelEmbeddings = 8
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	g := &GraphClient{
		parallelIncidents:  parallelIncidents,
		parallelEmbeddings: parallelEmbeddings,
		maxRetries:         maxRetries,
	}

	return g, nil
}
