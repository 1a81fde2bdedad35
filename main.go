package main

import "quizforge/cmd"

func main() {
	cmd.Execute()
}
