package main

import "github.com/fakeyudi/focuspet/cmd"

func main() {
	cmd.Execute()
}
