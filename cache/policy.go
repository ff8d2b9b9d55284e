// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"fmt"
	"time"
)

const (
	// Forever, used as a TTL, caches a result for the life of the cache.
	Forever time.Duration = -1
	// Never, used as a TTL, disables caching of a result.
	Never time.Duration = 0
)

// Policy controls how long lookup results are cached.
type Policy struct {
	// PositiveTTL is how long a successful lookup is cached. Never means
	// successful lookups are not cached at all.
	PositiveTTL time.Duration
	// NegativeTTL is how long a failed lookup is cached, during which the
	// same error is returned without consulting the resolver.
	NegativeTTL time.Duration
	// StaleTTL, if positive, enables stale-while-revalidate: for StaleTTL
	// after a successful result expires, it is still returned to callers
	// while one of them refreshes it. It has no effect unless PositiveTTL is
	// a finite duration.
	StaleTTL time.Duration
}

// DefaultPolicy returns the policy used when none is configured: successful
// lookups are cached for 30 seconds and failures for 10 seconds, with no
// stale window.
func DefaultPolicy() Policy {
	return Policy{
		PositiveTTL: 30 * time.Second,
		NegativeTTL: 10 * time.Second,
	}
}

// Validate reports an error if any TTL is negative, other than Forever.
func (p Policy) Validate() error {
	if p.PositiveTTL < Forever {
		return fmt.Errorf("invalid positive TTL %v", p.PositiveTTL)
	}
	if p.NegativeTTL < Forever {
		return fmt.Errorf("invalid negative TTL %v", p.NegativeTTL)
	}
	if p.StaleTTL < 0 {
		return fmt.Errorf("invalid stale TTL %v", p.StaleTTL)
	}
	return nil
}

func (p Policy) staleEnabled() bool {
	return p.StaleTTL > 0 && p.PositiveTTL > 0
}
