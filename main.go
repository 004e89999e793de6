package main

import "categorizer/internal/app"

func main() {
	app.Main()
}
