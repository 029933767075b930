package main

import (
	"log"
	"os"

	"github.com/dmitrijs2005/enclavekeeper/internal/verifier"
)

func main() {
	if err := verifier.NewApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
