package main

import "github.com/audiolibrelab/dvcapture/cmd"

func main() {
	cmd.Execute()
}
