package main

import "github.com/gridport/gridport/cmd"

func main() {
	cmd.Execute()
}
