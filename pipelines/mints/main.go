package main

import (
	"github.com/datazip-inc/pipes"
	"github.com/datazip-inc/pipes/projection"
)

func main() {
	pipes.RegisterProjection(projection.Mints)
}
