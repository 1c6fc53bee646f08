package cluster

// Port offsets from a node's base port, matching the layout the cluster
// config generator assigns to each node.
const (
	PortOffsetP2P    = 6
	PortOffsetRPC    = 7
	PortOffsetGRPC   = 9
	PortOffsetAPI    = 17
	PortOffsetEvmRPC = 3
	PortOffsetEvmWS  = 4
)

func P2PPort(basePort int) int    { return basePort + PortOffsetP2P }
func RPCPort(basePort int) int    { return basePort + PortOffsetRPC }
func GRPCPort(basePort int) int   { return basePort + PortOffsetGRPC }
func APIPort(basePort int) int    { return basePort + PortOffsetAPI }
func EvmRPCPort(basePort int) int { return basePort + PortOffsetEvmRPC }
func EvmWSPort(basePort int) int  { return basePort + PortOffsetEvmWS }
