package main

import "reinfer-cli/cmd"

func main() {
	cmd.Execute()
}
