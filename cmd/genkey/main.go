package main

import (
	"fmt"

	"github.com/Talha-Tahir2001/CollabSphere/internal/crypto"
)

func main() {
	secret, err := crypto.GenerateSecret()
	if err != nil {
		panic(err)
	}

	fmt.Printf("JWT_SECRET=%s\n", secret)
}
