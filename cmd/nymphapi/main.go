package main

import "github.com/frostu8/nymph/cmd/nymphapi/cmd"

func main() {
	cmd.Execute()
}
