package main

import (
	"fmt"

	"github.com/snappy-im/snappy-server/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
