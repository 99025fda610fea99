package protocol

import (
	"errors"

	"github.com/datazip-inc/pipes/logger"
	"github.com/datazip-inc/pipes/state"
	"github.com/datazip-inc/pipes/types"
	"github.com/spf13/cobra"
)

// checkpointCmd prints the stored checkpoint of every configured stream
var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "checkpoint command",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, streams, err := loadSource()
		if err != nil {
			return err
		}
		store, err := loadStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		for _, s := range streams {
			checkpoint, err := store.Get(cmd.Context(), s.spec.ID)
			if errors.Is(err, state.ErrCheckpointMissing) {
				logger.Infof("stream[%s]: no checkpoint, starts at block[%d]", s.spec.ID, s.spec.Range.From)
				continue
			}
			if err != nil {
				return err
			}
			logger.Info(types.Message{Type: types.CheckpointMessage, Checkpoint: checkpoint})
		}
		return nil
	},
}
