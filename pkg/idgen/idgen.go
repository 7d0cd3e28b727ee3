package idgen

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Init sets the snowflake node id (0-1023) of this process. It must be unique
// among processes writing to the same database.
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}

	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

// NextID falls back to node 1 when Init was never called.
func NextID() int64 {
	mu.Lock()
	if node == nil {
		node, _ = snowflake.NewNode(1)
	}
	n := node
	mu.Unlock()

	return n.Generate().Int64()
}

// GenerateTransactionNo returns a ledger journal number, e.g. TXN1789...
func GenerateTransactionNo() string {
	return fmt.Sprintf("TXN%d", NextID())
}
