// Package inmemdb provides in-memory repository implementations backing the
// test suites and local tinkering. Tables are plain maps guarded by one
// RWMutex; every repository shares the same DB so cross-entity transactions
// (branch confirmation, owner cascades) stay consistent.
package inmemdb

import (
	"sync"

	"github.com/trezcool/pamoja/core/branch"
	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/partnership"
	"github.com/trezcool/pamoja/core/user"
)

type DB struct {
	mutex sync.RWMutex

	users          map[string]*user.User              // by ID
	orgs           map[string]*org.Organization       // by Ref.String()
	memberships    map[string]*membership.Membership  // by ID
	branchRequests map[string]*branch.Request         // by ID
	partnerships   map[string]*partnership.Partnership // by ID
	partMembers    map[string]*partnership.Member     // by ID
}

func Open() (*DB, error) {
	return &DB{
		users:          make(map[string]*user.User),
		orgs:           make(map[string]*org.Organization),
		memberships:    make(map[string]*membership.Membership),
		branchRequests: make(map[string]*branch.Request),
		partnerships:   make(map[string]*partnership.Partnership),
		partMembers:    make(map[string]*partnership.Member),
	}, nil
}
