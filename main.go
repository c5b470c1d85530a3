package main

import (
	"nomade/cmd"
	"nomade/config"
)

func main() {
	config.LoadEnv()
	cmd.Execute()
}
