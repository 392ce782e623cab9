package main

import "github.com/dawdle-sh/dawdle/cmd"

func main() {
	cmd.Execute()
}
