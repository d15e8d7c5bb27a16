//go:build darwin

package cpu

import (
	"context"
	"fmt"
	"time"
	"unsafe"
)

/*
#include <mach/mach.h>
#include <mach/processor_info.h>
#include <mach/mach_host.h>
*/
import "C"

const defaultPath = "host_processor_info"

// Read takes one snapshot of all CPU tick counters using Mach host_processor_info.
// Mach only reports user, system, idle and nice ticks; the other fields stay zero.
func (c *Collector) Read(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	var (
		numCPU     C.natural_t
		cpuInfo    *C.integer_t
		numCPUInfo C.mach_msg_type_number_t
	)

	host := C.mach_host_self()
	ret := C.host_processor_info(host, C.PROCESSOR_CPU_LOAD_INFO, &numCPU, (*C.processor_info_array_t)(unsafe.Pointer(&cpuInfo)), &numCPUInfo)
	if ret != C.KERN_SUCCESS {
		return Snapshot{}, fmt.Errorf("host_processor_info failed: %d", ret)
	}
	defer C.vm_deallocate(C.mach_task_self_, C.vm_address_t(uintptr(unsafe.Pointer(cpuInfo))), C.vm_size_t(numCPUInfo)*C.vm_size_t(unsafe.Sizeof(C.integer_t(0))))

	snap := Snapshot{Epoch: time.Now().Unix()}
	total := Stat{CPU: TotalID}
	cores := make([]Stat, 0, int(numCPU))
	cpuLoadInfo := (*[1 << 20]C.integer_t)(unsafe.Pointer(cpuInfo))

	for i := C.natural_t(0); i < numCPU; i++ {
		offset := i * C.CPU_STATE_MAX
		st := Stat{
			CPU:    int(i),
			User:   uint64(cpuLoadInfo[offset+C.CPU_STATE_USER]),
			System: uint64(cpuLoadInfo[offset+C.CPU_STATE_SYSTEM]),
			Idle:   uint64(cpuLoadInfo[offset+C.CPU_STATE_IDLE]),
			Nice:   uint64(cpuLoadInfo[offset+C.CPU_STATE_NICE]),
		}
		total.User += st.User
		total.System += st.System
		total.Idle += st.Idle
		total.Nice += st.Nice
		cores = append(cores, st)
	}

	snap.Stats = append([]Stat{total}, cores...)
	return snap, nil
}
