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

// Package hostcache resolves host names to IP addresses, and addresses back
// to host names, with a cache in front of a pluggable resolver.
//
// To create a new resolution service use the [New] function. It accepts a
// [resolver.Resolver], which performs the actual lookups, and options that
// configure the cache. Most programs that do not need their own resolver
// can use the package-level [Resolve] and [ReverseResolve] functions, which
// use a process-wide service built on first use.
//
// # Caching
//
// Successful lookups are cached for 30 seconds by default, and failed
// lookups for 10 seconds. Both durations can be changed with [WithPolicy],
// including to [cache.Forever] and [cache.Never].
//
// At most one lookup is in progress for a host at any time: callers that ask
// for a host while it is being looked up wait for the lookup and share its
// result. A lookup never blocks callers that ask for other hosts.
//
// When the policy has a stale window (cache.Policy.StaleTTL), results that
// have expired keep being returned for that long. The first caller to see an
// expired result looks the host up again, but gets the expired result like
// everyone else: a failed refresh is never reported to callers.
//
// # Input
//
// [Service.Resolve] returns IP literals, including bracketed IPv6 literals
// like "[2001:db8::1]", without consulting the cache. An empty host resolves
// to the loopback address. Anything else must be a valid domain name.
// Invalid input is reported with errors that match
// [resolver.ErrInvalidInput], before the cache is consulted.
//
// # Reverse Lookups
//
// [Service.ReverseResolve] only returns a host name when that name resolves
// back to the address. Otherwise it returns the address in text form, so a
// name served by whoever controls the reverse zone cannot impersonate
// another host.
//
// # Default Resolver
//
// The process-wide service uses the resolver returned by [DefaultResolver].
// It is the system resolver unless a provider is registered with
// [SetResolverProvider] before first use. The cache policy of the
// process-wide service is read from HOSTCACHE_ environment variables, as
// described in the config package.
package hostcache
