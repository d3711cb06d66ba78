package main

import "github.com/kozaktomas/evoface/cmd"

func main() {
	cmd.Execute()
}
