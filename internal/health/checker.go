/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package health

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/loqalabs/loqa-voicechat/internal/logging"
)

// CheckFunc reports whether a dependency is reachable
type CheckFunc func(ctx context.Context) error

// Overall service states
const (
	StatusOK          = "ok"
	StatusDegraded    = "degraded"
	StatusUnavailable = "unavailable"
)

// ServiceStatus is the latest check result for one dependency
type ServiceStatus struct {
	Name      string        `json:"name"`
	Available bool          `json:"available"`
	Critical  bool          `json:"critical"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

// HostInfo describes the machine running the service
type HostInfo struct {
	CPUCores     int    `json:"cpu_cores"`
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
	GoVersion    string `json:"go_version"`
}

// Report is the aggregated dependency state
type Report struct {
	Status            string          `json:"status"`
	Services          []ServiceStatus `json:"services"`
	Host              HostInfo        `json:"host"`
	LastChecked       time.Time       `json:"last_checked"`
	DegradationReason string          `json:"degradation_reason,omitempty"`
}

// Serving reports whether every critical dependency is available
func (r Report) Serving() bool {
	return r.Status != StatusUnavailable
}

type registeredCheck struct {
	name     string
	critical bool
	check    CheckFunc
}

// Checker periodically checks the service dependencies
type Checker struct {
	mutex  sync.RWMutex
	report Report
	checks []registeredCheck

	interval time.Duration
	timeout  time.Duration

	onChange func(old, new Report)
}

// NewChecker creates a checker checking every interval, each check bounded by timeout
func NewChecker(interval, timeout time.Duration) *Checker {
	return &Checker{
		interval: interval,
		timeout:  timeout,
		report: Report{
			Status:      StatusOK,
			Host:        detectHost(),
			LastChecked: time.Now(),
		},
	}
}

// Register adds a dependency. A failing critical dependency makes the
// service unavailable; any other failure only degrades it.
func (c *Checker) Register(name string, critical bool, check CheckFunc) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.checks = append(c.checks, registeredCheck{name: name, critical: critical, check: check})
}

// OnChange sets a callback invoked when the overall status changes
func (c *Checker) OnChange(fn func(old, new Report)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onChange = fn
}

// Start runs a check immediately and then every interval until ctx is done
func (c *Checker) Start(ctx context.Context) {
	c.Check(ctx)
	if c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check runs every check once and returns the new report
func (c *Checker) Check(ctx context.Context) Report {
	c.mutex.RLock()
	checks := append([]registeredCheck(nil), c.checks...)
	c.mutex.RUnlock()

	services := make([]ServiceStatus, len(checks))
	var wg sync.WaitGroup
	for i, p := range checks {
		wg.Add(1)
		go func(i int, p registeredCheck) {
			defer wg.Done()
			services[i] = c.run(ctx, p)
		}(i, p)
	}
	wg.Wait()

	status, reason := summarize(services)

	c.mutex.Lock()
	old := c.report
	c.report = Report{
		Status:            status,
		Services:          services,
		Host:              old.Host,
		LastChecked:       time.Now(),
		DegradationReason: reason,
	}
	current := c.report
	onChange := c.onChange
	c.mutex.Unlock()

	if logging.Sugar != nil {
		logging.Sugar.Infow("Health check completed",
			"status", status,
			"services", len(services),
			"reason", reason,
		)
	}

	if old.Status != current.Status && onChange != nil {
		onChange(old, current)
	}
	return current
}

func (c *Checker) run(ctx context.Context, p registeredCheck) ServiceStatus {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := p.check(checkCtx)

	status := ServiceStatus{
		Name:      p.name,
		Available: err == nil,
		Critical:  p.critical,
		Latency:   time.Since(start),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// summarize derives the overall status; critical failures take precedence
func summarize(services []ServiceStatus) (string, string) {
	status, reason := StatusOK, ""
	for _, s := range services {
		if s.Available {
			continue
		}
		if s.Critical {
			return StatusUnavailable, fmt.Sprintf("%s unavailable: %s", s.Name, s.Error)
		}
		if status == StatusOK {
			status, reason = StatusDegraded, fmt.Sprintf("%s unavailable: %s", s.Name, s.Error)
		}
	}
	return status, reason
}

// Report returns the latest report
func (c *Checker) Report() Report {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	report := c.report
	report.Services = append([]ServiceStatus(nil), c.report.Services...)
	return report
}

// HTTPCheck treats any response below 500 from url as healthy. Many APIs
// answer unauthenticated checks with 401, which still proves reachability.
func HTTPCheck(client *http.Client, url string) CheckFunc {
	if client == nil {
		client = http.DefaultClient
	}

	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("health check %s returned status %d", url, resp.StatusCode)
		}
		return nil
	}
}

func detectHost() HostInfo {
	return HostInfo{
		CPUCores:     runtime.NumCPU(),
		Architecture: runtime.GOARCH,
		OS:           runtime.GOOS,
		GoVersion:    runtime.Version(),
	}
}
