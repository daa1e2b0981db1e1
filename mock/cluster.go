package mock

// Cluster bundles a mock master and a mock tablet server wired
// together: every replica the master hands out points at the data
// server's address.
type Cluster struct {
	Master     *Master
	DataServer *DataServer
}

func NewCluster() *Cluster {
	return &Cluster{
		Master:     NewMaster(DsAddr),
		DataServer: NewDataServer(),
	}
}
