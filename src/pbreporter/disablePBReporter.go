/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package pbreporter

type DisablePBReporter struct {
	TotalBytes      int64
	CurrentBytes    int64
	TriggerComplete bool
	IsCompleted     bool
}

func newDisablePBReporter() *DisablePBReporter {
	return &DisablePBReporter{}
}

func (pbr *DisablePBReporter) SetTotal(total int64, triggerComplete bool) {
	pbr.TriggerComplete = triggerComplete
	if total < 0 {
		pbr.TotalBytes = pbr.CurrentBytes
	} else {
		pbr.TotalBytes = total
	}
	if triggerComplete && !pbr.IsCompleted {
		pbr.IsCompleted = true
		pbr.CurrentBytes = pbr.TotalBytes
	}
}

func (pbr *DisablePBReporter) SetCurrent(current int64) {
	if current < 0 {
		current = 0
	}
	pbr.CurrentBytes = current
	if pbr.TriggerComplete && pbr.CurrentBytes >= pbr.TotalBytes {
		pbr.CurrentBytes = pbr.TotalBytes
		pbr.IsCompleted = true
	}
}

func (pbr *DisablePBReporter) IsComplete() bool {
	return pbr.IsCompleted
}
