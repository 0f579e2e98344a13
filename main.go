package main

import (
	"os"

	"github.com/epeers/navgraph/cmd"
)

// @title navgraph API
// @version 0.3
// @description Multi-level fund NAV, return and ownership calculation runs.
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
