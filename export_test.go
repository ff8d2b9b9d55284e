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

package hostcache

import (
	"sync"

	"github.com/bufbuild/hostcache/resolver"
)

// ResetDefaults forgets the process-wide resolver, service and provider.
func ResetDefaults() {
	providerMu.Lock()
	provider = nil
	providerUsed = false
	providerMu.Unlock()
	initializing.Store(false)
	defaultResolver = sync.OnceValue(newDefaultResolver)
	defaultService = sync.OnceValues(newDefaultService)
	bootstrapService = sync.OnceValues(newBootstrapService)
}

func BootstrapResolver() resolver.Resolver {
	return bootstrapResolver
}
