package main

import "github.com/halfmoth/graft/cmd"

func main() {
	cmd.Execute()
}
