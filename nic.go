package j1708gw

//
// Port naming (for log messages)
//

import (
	"fmt"
	"sync/atomic"
)

// portID is the unique ID of each Gateway port, for default naming.
var portID = &atomic.Int64{}

// newPortName constructs a new, unique default name for a Gateway that
// wasn't given one explicitly in its [GatewayConfig].
func newPortName() string {
	return fmt.Sprintf("j1708-%d", portID.Add(1))
}
