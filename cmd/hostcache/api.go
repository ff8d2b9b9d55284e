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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"

	"github.com/bufbuild/hostcache"
	"github.com/bufbuild/hostcache/resolver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type resolveResponse struct {
	Host  string   `json:"host"`
	Addrs []string `json:"addrs"`
}

type reverseResponse struct {
	IP   string `json:"ip"`
	Name string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// newAPIHandler serves:
//
//	GET /resolve?host=<name>
//	GET /reverse?ip=<address>
//	GET /metrics
func newAPIHandler(service *hostcache.Service, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	api := &apiHandler{service: service, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /resolve", api.resolve)
	mux.HandleFunc("GET /reverse", api.reverse)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

type apiHandler struct {
	service *hostcache.Service
	logger  *zap.Logger
}

func (h *apiHandler) resolve(w http.ResponseWriter, req *http.Request) {
	host := req.URL.Query().Get("host")
	addrs, err := h.service.Resolve(req.Context(), host)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := resolveResponse{Host: host, Addrs: make([]string, len(addrs))}
	for i, addr := range addrs {
		resp.Addrs[i] = addr.String()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *apiHandler) reverse(w http.ResponseWriter, req *http.Request) {
	text := req.URL.Query().Get("ip")
	addr, err := netip.ParseAddr(text)
	if err != nil {
		h.writeError(w, &resolver.InvalidInputError{Input: text, Reason: "not an IP address"})
		return
	}
	name, err := h.service.ReverseResolve(req.Context(), addr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reverseResponse{IP: addr.String(), Name: name})
}

func (h *apiHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, resolver.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	case errors.Is(err, resolver.ErrUnknownHost):
		status = http.StatusNotFound
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("failed to write api response", zap.Error(err))
	}
}
