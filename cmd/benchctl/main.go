package main

import (
	"os"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/cmd/benchctl/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
