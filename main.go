package main

import "github.com/nextlevelbuilder/goicq/cmd"

func main() {
	cmd.Execute()
}
