package main

import "github.com/brogergvhs/mangawatch/cmd"

func main() {
	cmd.Execute()
}
