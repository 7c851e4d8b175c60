package main

import "stageq/cmd"

func main() {
	cmd.Execute()
}
