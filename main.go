package main

import "github.com/nextlevelbuilder/deskbot/cmd"

func main() {
	cmd.Execute()
}
