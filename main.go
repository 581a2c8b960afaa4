package main

import "github.com/loopwidget/planscope/cmd"

func main() {
	cmd.Execute()
}
