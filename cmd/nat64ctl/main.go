// nat64ctl -- CLI client for the nat64d admin surface.
package main

import "github.com/apalrd/gonat64/cmd/nat64ctl/commands"

func main() {
	commands.Execute()
}
