package pipes

import (
	"os"

	_ "github.com/datazip-inc/pipes/destination/clickhouse" // registering clickhouse destination
	_ "github.com/datazip-inc/pipes/destination/duckdb"     // registering duckdb destination
	_ "github.com/datazip-inc/pipes/destination/parquet"    // registering parquet destination
	_ "github.com/datazip-inc/pipes/destination/postgres"   // registering postgres destination
	"github.com/datazip-inc/pipes/logger"
	"github.com/datazip-inc/pipes/projection"
	"github.com/datazip-inc/pipes/protocol"
	_ "github.com/datazip-inc/pipes/state/clickhouse" // registering clickhouse state store
	_ "github.com/datazip-inc/pipes/state/file"       // registering file state store
	_ "github.com/datazip-inc/pipes/state/memory"     // registering memory state store
	_ "github.com/datazip-inc/pipes/state/postgres"   // registering postgres state store
	"github.com/datazip-inc/pipes/utils/safego"
)

// RegisterProjection runs the CLI for a binary deploying p
func RegisterProjection(p *projection.Projection) {
	defer safego.Recovery(true)

	root, err := protocol.CreateRootCommand(p)
	if err != nil {
		logger.Fatal(err)
	}

	// Execute the root command
	if err := root.Execute(); err != nil {
		logger.Fatal(err)
	}

	os.Exit(0)
}
