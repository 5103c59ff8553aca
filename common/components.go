package common

const (
	// RPC name to identify the rpc component (optimism and admin namespaces)
	RPC = "rpc"
	// SEQUENCER name to identify the block producer. Only one node of a chain runs it
	SEQUENCER = "sequencer"
)

// IsNeeded is true when any of the components in casesWhereNeeded is going to run
func IsNeeded(casesWhereNeeded, actualCases []string) bool {
	for _, actualCase := range actualCases {
		for _, caseWhereNeeded := range casesWhereNeeded {
			if actualCase == caseWhereNeeded {
				return true
			}
		}
	}
	return false
}
