package model

// UpstreamCluster is a cluster as reported by the provider listing.
type UpstreamCluster struct {
	ID      string
	Label   string
	Region  string
	Version string
	Status  string
}

// NodePool is one node pool of an upstream cluster.
type NodePool struct {
	ID    string
	Type  string
	Count int
}
