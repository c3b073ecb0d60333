package main

import "github.com/hbl306/phongtro57-chat/internal/app"

func main() {
	app.Run()
}
