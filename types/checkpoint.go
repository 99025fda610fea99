package types

import "fmt"

// Checkpoint marks the last block of a stream whose records were durably
// written. One exists per stream id and its block number never decreases.
type Checkpoint struct {
	StreamID    string `json:"stream_id"`
	BlockNumber uint64 `json:"block_number"`
	BlockHash   string `json:"block_hash"`
}

// Next is the first block not yet covered by the checkpoint.
func (c *Checkpoint) Next() uint64 {
	return c.BlockNumber + 1
}

func (c *Checkpoint) String() string {
	return fmt.Sprintf("%s@%d(%s)", c.StreamID, c.BlockNumber, c.BlockHash)
}
