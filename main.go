package main

import "github.com/audiolibrelab/screencapture/cmd"

func main() {
	cmd.Execute()
}
