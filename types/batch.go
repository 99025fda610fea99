package types

import "fmt"

// Batch is an ordered, non-empty run of blocks pulled together. It is the unit
// of transform, write and acknowledgement.
type Batch struct {
	Blocks []RawBlock
}

func NewBatch(blocks []RawBlock) (*Batch, error) {
	batch := &Batch{Blocks: blocks}
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	return batch, nil
}

// Validate checks the batch is non-empty and its block numbers strictly increase.
func (b *Batch) Validate() error {
	if b == nil || len(b.Blocks) == 0 {
		return fmt.Errorf("empty batch")
	}
	for i := 1; i < len(b.Blocks); i++ {
		if b.Blocks[i].Header.Number <= b.Blocks[i-1].Header.Number {
			return fmt.Errorf("block[%d] follows block[%d] in batch", b.Blocks[i].Header.Number, b.Blocks[i-1].Header.Number)
		}
	}
	return nil
}

func (b *Batch) Len() int {
	return len(b.Blocks)
}

// First is the header of the lowest block in the batch.
func (b *Batch) First() BlockHeader {
	return b.Blocks[0].Header
}

// Frontier is the header of the highest block in the batch.
func (b *Batch) Frontier() BlockHeader {
	return b.Blocks[len(b.Blocks)-1].Header
}

// Checkpoint derives the checkpoint acknowledging every block of the batch.
func (b *Batch) Checkpoint(streamID string) Checkpoint {
	frontier := b.Frontier()
	return Checkpoint{
		StreamID:    streamID,
		BlockNumber: frontier.Number,
		BlockHash:   frontier.Hash,
	}
}
