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

package resolver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals
var nopLogger = zap.NewNop()

// HostsFile resolves names from a file in the /etc/hosts format: one
// address per line followed by a canonical name and any aliases, with "#"
// starting a comment. The file is parsed once and parsed again whenever it
// changes on disk.
type HostsFile struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu sync.RWMutex
	// +checklocks:mu
	table hostsTable
}

var _ Resolver = (*HostsFile)(nil)

type hostsTable struct {
	byName map[string][]netip.Addr // keyed by lower-case name
	byAddr map[netip.Addr]string
}

// NewHostsFile loads the hosts file at path and starts watching it for
// changes. A nil logger disables logging. Close must be called to stop
// watching.
func NewHostsFile(path string, logger *zap.Logger) (*HostsFile, error) {
	if logger == nil {
		logger = nopLogger
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hosts file path, %w", err)
	}
	hosts := &HostsFile{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}
	if err := hosts.reload(); err != nil {
		return nil, err
	}

	// Watch the directory rather than the file, so that editors and tools
	// that replace the file by renaming over it are noticed.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to watch hosts file, %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch hosts file, %w", err)
	}
	hosts.watcher = watcher
	go hosts.watch()
	return hosts, nil
}

// LookupByName implements Resolver. Names are matched case-insensitively.
func (h *HostsFile) LookupByName(_ context.Context, host string, policy LookupPolicy) ([]netip.Addr, error) {
	h.mu.RLock()
	addresses := h.table.byName[strings.ToLower(host)]
	h.mu.RUnlock()

	// ApplyPolicy copies, so the table is never shared with callers.
	addresses = ApplyPolicy(addresses, policy)
	if len(addresses) == 0 {
		return nil, &UnknownHostError{Host: host, Err: fmt.Errorf("not found in hosts file %s", h.path)}
	}
	return addresses, nil
}

// LookupByAddress implements Resolver. It returns the canonical name of the
// first line that lists addr.
func (h *HostsFile) LookupByAddress(_ context.Context, addr netip.Addr) (string, error) {
	h.mu.RLock()
	name, ok := h.table.byAddr[addr.Unmap()]
	h.mu.RUnlock()
	if !ok {
		return "", &UnknownHostError{Host: addr.String(), Err: fmt.Errorf("not found in hosts file %s", h.path)}
	}
	return name, nil
}

// Close stops watching the hosts file.
func (h *HostsFile) Close() error {
	err := h.watcher.Close()
	<-h.done
	return err
}

func (h *HostsFile) watch() {
	defer close(h.done)
	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != h.path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := h.reload(); err != nil {
				h.logger.Warn("failed to reload hosts file, keeping previous entries", zap.String("file", h.path), zap.Error(err))
				continue
			}
			h.logger.Info("hosts file reloaded", zap.String("file", h.path))
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Warn("hosts file watcher error", zap.String("file", h.path), zap.Error(err))
		}
	}
}

func (h *HostsFile) reload() error {
	file, err := os.Open(h.path)
	if err != nil {
		return fmt.Errorf("failed to open hosts file, %w", err)
	}
	defer file.Close()
	table, err := parseHosts(file)
	if err != nil {
		return fmt.Errorf("failed to read hosts file %s, %w", h.path, err)
	}
	h.mu.Lock()
	h.table = table
	h.mu.Unlock()
	return nil
}

// parseHosts reads hosts file entries. Lines whose first field is not an IP
// address are skipped.
func parseHosts(r io.Reader) (hostsTable, error) {
	table := hostsTable{
		byName: map[string][]netip.Addr{},
		byAddr: map[netip.Addr]string{},
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		addr, err := netip.ParseAddr(fields[0])
		if err != nil {
			continue
		}
		addr = addr.Unmap()
		if _, ok := table.byAddr[addr]; !ok {
			table.byAddr[addr] = fields[1]
		}
		for _, name := range fields[1:] {
			key := strings.ToLower(name)
			if !slices.Contains(table.byName[key], addr) {
				table.byName[key] = append(table.byName[key], addr)
			}
		}
	}
	return table, scanner.Err()
}
