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

// Package resolver provides functionality for name resolution: turning a
// host name into one or more IP addresses, and an IP address back into a
// host name.
//
// It contains the core interface ([Resolver]) that the cache package uses to
// perform the slow, external part of a lookup. The interface is synchronous
// and general enough to support any source of truth.
//
// # Implementations
//
// This package contains several implementations:
//
//   - [SystemResolver] uses a [net.Resolver], and so follows the operating
//     system's configuration (hosts file, resolv.conf).
//   - [UpstreamResolver] sends DNS queries directly to one DNS server.
//   - [HostsFile] serves a hosts file, reloading it when it changes.
//   - [RedisResolver] serves a directory of names kept in Redis.
//
// # Errors
//
// A resolver reports a name (or address) that does not exist with an error
// that matches [ErrUnknownHost]. Any other error is considered transient.
// Malformed input is reported with errors that match [ErrInvalidInput].
//
// # Address Families
//
// Every lookup takes a [LookupPolicy], which selects the address families
// to return. [ApplyPolicy] implements the policy for resolvers whose source
// of truth does not filter by family itself.
package resolver
