/*
This command provides the executable version of the gatekeeper.

For the list of command line options, run:

	gatekeeper -help

For details about the usage, please see the documentation of the root
gatekeeper package.
*/
package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/mtc-jordan/gatekeeper"
	"github.com/mtc-jordan/gatekeeper/config"
)

func main() {
	cfg := config.NewConfig()
	if err := cfg.Parse(); err != nil {
		log.Fatalf("error processing config: %s", err)
	}

	log.Fatal(gatekeeper.Run(cfg.ToOptions()))
}
