// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	gomaxecs "github.com/rdforte/gomaxecs/maxprocs"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/cardinalhq/celestus/cmd"
)

func stderrf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
}

// setupRuntime sizes the Go runtime to the container celestus runs in.
// Bootstrap usually runs as a Kubernetes init container or ECS task with a
// tight memory limit, so GOMEMLIMIT follows the cgroup limit. GC pacing is
// left at the Go default.
func setupRuntime() {
	if gomaxecs.IsECS() {
		if _, err := gomaxecs.Set(gomaxecs.WithLogger(stderrf)); err != nil {
			stderrf("failed to set maxprocs for ECS: %v", err)
		}
	} else if _, err := maxprocs.Set(maxprocs.Logger(stderrf)); err != nil {
		stderrf("failed to set maxprocs: %v", err)
	}

	if _, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithLogger(slog.Default()),
		memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
	); err != nil {
		stderrf("failed to set memory limit: %v", err)
	}
}

func main() {
	time.Local = time.UTC
	setupRuntime()
	cmd.Execute()
}
