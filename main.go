package main

import "github.com/audiolibrelab/ghostrec/cmd"

func main() {
	cmd.Execute()
}
