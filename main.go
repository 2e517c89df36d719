package main

import "procure-agent/cmd"

func main() {
	cmd.Execute()
}
