package main

import (
	"errors"

	"github.com/Akhilkandikonda/pipedream/internal/poll"
)

// Exit codes: 1 for runtime failures, 2 for configuration problems.
const exitConfig = 2

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, poll.ErrConfiguration) {
			exitWith(err, exitConfig)
		}

		exitOnError(err)
	}
}
