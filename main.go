package main

import "github.com/mhornych/presence/cmd"

func main() {
	cmd.Execute()
}
