package main

import "medvault/cmd/medvault-cli/cmd"

func main() {
	cmd.Execute()
}
