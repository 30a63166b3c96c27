package main

import "github.com/sw33tLie/stockfinder/cmd"

func main() {
	cmd.Execute()
}
