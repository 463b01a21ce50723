package main

import "mspro-labs/map-extractor/cmd"

func main() {
	cmd.Execute()
}
