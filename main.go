package main

import "github.com/jmehdipour/sms-bridge/cmd"

func main() {
	cmd.Execute()
}
