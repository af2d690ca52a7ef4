package loadgen

import (
	"time"

	"github.com/google/uuid"

	"github.com/fanbench/fanbench/internal/unit"
)

// Profile is a named, immutable load configuration.
type Profile struct {
	Name string `json:"name" yaml:"name"`

	// Users is the number of concurrent virtual users.
	Users int `json:"users" yaml:"users"`

	// Duration is the wall-clock length of the run.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// RampUp is the window over which user starts are staggered linearly.
	RampUp time.Duration `json:"ramp_up" yaml:"ramp_up"`
}

// BuiltinProfiles returns the standard light/medium/heavy profiles.
func BuiltinProfiles() []Profile {
	return []Profile{
		{Name: "light", Users: 5, Duration: 30 * time.Second, RampUp: 5 * time.Second},
		{Name: "medium", Users: 20, Duration: 60 * time.Second, RampUp: 10 * time.Second},
		{Name: "heavy", Users: 50, Duration: 120 * time.Second, RampUp: 20 * time.Second},
	}
}

// VirtualUser is one simulated client. It is created once per run and
// driven by exactly one goroutine until the run's stop signal fires and its
// current iteration completes.
type VirtualUser struct {
	ID    string
	Units []*unit.Unit
}

// newVirtualUsers builds the user population for a run, each with its own
// fixed small unit set.
func newVirtualUsers(count, unitsPerUser int) []*VirtualUser {
	users := make([]*VirtualUser, 0, count)
	for i := 0; i < count; i++ {
		users = append(users, &VirtualUser{
			ID:    uuid.NewString(),
			Units: unit.Generate(unitsPerUser),
		})
	}
	return users
}
