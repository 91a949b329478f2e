package main

import "github.com/frostu8/nymph/cmd/nymphctl/cmd"

func main() {
	cmd.Execute()
}
