package main

import "github.com/example/realtime-chat/cmd"

func main() {
	cmd.Execute()
}
