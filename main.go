package main

import "github.com/j4cko/hdf5-metadataindex/cmd"

func main() {
	cmd.Execute()
}
