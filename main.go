package main

import "github.com/frahmantamala/salespilot/cmd"

func main() {
	cmd.Execute()
}
