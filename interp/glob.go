package interp

import "github.com/tv-labs/bash-sub005/pattern"

func matchAnchored(pat, s string) (bool, error) {
	return pattern.Match(pat, s, 0)
}
