package main

import (
	"fmt"
	"os"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
)

func main() {
	err := NewRootCommand().Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
