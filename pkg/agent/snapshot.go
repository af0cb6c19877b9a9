/*
 * Copyright 2026 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package agent

import (
	"context"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"

	"github.com/carverauto/fleethub/pkg/models"
)

// snapshotMessage is the agent's periodic state report. The hub stores it
// verbatim; only type, control, geo, and public_ip are interpreted there.
type snapshotMessage struct {
	Type    string                   `json:"type"`
	OS      map[string]interface{}   `json:"os,omitempty"`
	IPs     []string                 `json:"ips,omitempty"`
	Runtime string                   `json:"runtime,omitempty"`
	Memory  map[string]uint64        `json:"memory,omitempty"`
	Control models.ControlCapability `json:"control"`
}

// collectSnapshot gathers host facts. Individual collectors failing produce
// a sparser snapshot, not an error; a device with a broken collector should
// still report a heartbeat.
func collectSnapshot(ctx context.Context, control models.ControlCapability) (interface{}, error) {
	msg := &snapshotMessage{Type: models.MessageTypeSnapshot, Control: control}

	if info, err := host.InfoWithContext(ctx); err == nil {
		msg.OS = map[string]interface{}{
			"hostname": info.Hostname,
			"platform": info.Platform,
			"version":  info.PlatformVersion,
			"kernel":   info.KernelVersion,
			"arch":     info.KernelArch,
			"uptime":   info.Uptime,
		}
		msg.Runtime = info.OS
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		msg.Memory = map[string]uint64{
			"total": vm.Total,
			"used":  vm.Used,
		}
	}

	if ifaces, err := gopsnet.InterfacesWithContext(ctx); err == nil {
		for _, iface := range ifaces {
			for _, addr := range iface.Addrs {
				msg.IPs = append(msg.IPs, addr.Addr)
			}
		}
	}

	return msg, nil
}
