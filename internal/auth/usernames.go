// internal/auth/usernames.go
package auth

import (
	"fmt"
	"math/rand"
)

var usernameAdjectives = []string{
	"amber", "brave", "calm", "dapper", "eager", "fuzzy", "gentle", "hasty",
	"ivory", "jolly", "keen", "lucid", "mellow", "nimble", "opal", "plucky",
	"quiet", "rustic", "sly", "tidy", "umber", "vivid", "wily", "zesty",
}

var usernameNouns = []string{
	"drake", "mallard", "teal", "wigeon", "pintail", "gadwall", "scaup",
	"pochard", "smew", "eider", "scoter", "merganser", "shoveler", "goldeneye",
}

// GenerateUsername returns a random guest username. Callers handle the rare
// collision by appending a short suffix.
func GenerateUsername() string {
	a := usernameAdjectives[rand.Intn(len(usernameAdjectives))]
	n := usernameNouns[rand.Intn(len(usernameNouns))]
	return fmt.Sprintf("%s-%s-%d", a, n, rand.Intn(100))
}
