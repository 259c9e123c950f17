// Command batchctl pivots, reconciles and persists sampling batch trees.
package main

import "batchcore/internal/cli"

func main() {
	cli.Execute()
}
