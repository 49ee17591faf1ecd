package shared

type Chain int

const (
	L1 Chain = iota
	L2
)

func (c Chain) String() string {
	switch c {
	case L1:
		return "L1"
	case L2:
		return "L2"
	default:
		return "unknown"
	}
}

// ChainEndpoint names the JSON-RPC endpoint serving one side of the bridge.
type ChainEndpoint struct {
	URL  string
	Role Chain
}
