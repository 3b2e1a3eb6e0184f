package main

import (
	"fmt"

	"github.com/arcfront/shellbus/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
