package main

import (
	"github.com/sidkik/sftpsync/cmd"
	"github.com/sidkik/sftpsync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
