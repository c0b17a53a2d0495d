package main

import (
	"pulse/cmd/handlers"
)

func main() {
	handlers.Execute()
}
