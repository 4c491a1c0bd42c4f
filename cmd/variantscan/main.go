// Command variantscan builds and inspects the route manifest used by the
// variants gateway.
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("variantscan: %v", err)
	}
}
